package model

// ScoreRecord is one row of a daily scoring batch.
type ScoreRecord struct {
	RunDate            string  `json:"run_date" csv:"run_date"`
	AccountID          string  `json:"account_id" csv:"account_id"`
	T0Date             string  `json:"t0_date" csv:"t0_date"`
	PWin90d            float64 `json:"p_win_90d" csv:"p_win_90d"`
	ExpectedAmount180d float64 `json:"expected_amount_180d" csv:"expected_amount_180d"`
	ExpectedValue      float64 `json:"expected_value" csv:"expected_value"`
	IsPriority         int     `json:"is_priority" csv:"is_priority"`
}

// ScoreColumns lists the scores table columns in insert order.
var ScoreColumns = []string{
	"run_date",
	"account_id",
	"t0_date",
	"p_win_90d",
	"expected_amount_180d",
	"expected_value",
	"is_priority",
}
