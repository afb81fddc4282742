package feature

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/store"
)

// Label windows in days, inclusive.
const (
	CloseWindowDays  = 90
	AmountWindowDays = 180
)

// Source is the read side of the store the assembler needs.
type Source interface {
	TableExists(ctx context.Context, name string) (bool, error)
	ExecScript(ctx context.Context, script string) error
	Query(ctx context.Context, table string, columns ...string) (*model.Table, error)
}

// Options configures an Assembler.
type Options struct {
	View         string // feature projection, default "feature_view"
	OrdersTable  string // raw orders, default "orders"
	TransformSQL string // script that builds the projection when missing
	Clock        Clock
}

// Assembler joins the feature projection with order-derived labels.
type Assembler struct {
	src  Source
	opts Options
	log  *zap.Logger
}

// NewAssembler creates an Assembler over src.
func NewAssembler(src Source, opts Options) *Assembler {
	if opts.View == "" {
		opts.View = "feature_view"
	}
	if opts.OrdersTable == "" {
		opts.OrdersTable = "orders"
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Assembler{
		src:  src,
		opts: opts,
		log:  zap.L().With(zap.String("component", "feature.assembler")),
	}
}

// Assemble returns one labeled row per projection row. Labels count orders
// within the windows ending at the clock's current UTC date.
func (a *Assembler) Assemble(ctx context.Context) (*Frame, error) {
	if err := a.ensureProjection(ctx); err != nil {
		return nil, err
	}

	proj, err := a.src.Query(ctx, a.opts.View)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: read projection %s", a.opts.View)
	}
	idIdx := proj.Index(ColAccountID)
	if idIdx < 0 {
		return nil, eris.Errorf("feature: projection %s has no %s column", a.opts.View, ColAccountID)
	}
	t0Idx := proj.Index(ColT0Date)

	totals, err := a.orderTotals(ctx)
	if err != nil {
		return nil, err
	}

	frame := &Frame{Columns: proj.Columns, Rows: make([]Row, 0, len(proj.Rows))}
	for _, vals := range proj.Rows {
		row := Row{Values: make(map[string]any, len(vals))}
		row.AccountID, _ = model.Text(vals[idIdx])
		if t0Idx >= 0 {
			row.T0Date = normalizeDate(vals[t0Idx])
		}
		for i, col := range proj.Columns {
			if i == idIdx || i == t0Idx {
				continue
			}
			row.Values[col] = vals[i]
		}

		t := totals[row.AccountID]
		row.Amount90 = t.Amount90
		row.Amount180 = t.Amount180
		if t.Amount90 > 0 {
			row.CloseLabel = 1
		}
		row.AmountLabel = t.Amount180
		frame.Rows = append(frame.Rows, row)
	}

	a.log.Info("frame assembled",
		zap.Int("rows", frame.Len()),
		zap.Int("accounts_with_orders", len(totals)),
		zap.String("today_utc", a.opts.Clock.TodayUTC().Format(model.DateLayout)),
	)
	return frame, nil
}

func (a *Assembler) ensureProjection(ctx context.Context) error {
	ok, err := a.src.TableExists(ctx, a.opts.View)
	if err != nil {
		return eris.Wrapf(err, "feature: check projection %s", a.opts.View)
	}
	if ok {
		return nil
	}
	if a.opts.TransformSQL == "" {
		return eris.Errorf("feature: projection %s is missing and no transform script is configured", a.opts.View)
	}

	a.log.Warn("feature projection missing, running transform", zap.String("view", a.opts.View))
	if err := store.RunScriptFile(ctx, a.src, a.opts.TransformSQL); err != nil {
		return eris.Wrapf(err, "feature: build projection %s", a.opts.View)
	}

	ok, err = a.src.TableExists(ctx, a.opts.View)
	if err != nil {
		return eris.Wrapf(err, "feature: check projection %s", a.opts.View)
	}
	if !ok {
		return eris.Errorf("feature: transform did not create projection %s", a.opts.View)
	}
	return nil
}

func (a *Assembler) orderTotals(ctx context.Context) (map[string]Totals, error) {
	ok, err := a.src.TableExists(ctx, a.opts.OrdersTable)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: check %s", a.opts.OrdersTable)
	}
	if !ok {
		a.log.Warn("orders table missing, labels default to zero", zap.String("table", a.opts.OrdersTable))
		return map[string]Totals{}, nil
	}

	orders, err := a.src.Query(ctx, a.opts.OrdersTable, "account_id", "order_date", "total_amount")
	if err != nil {
		return nil, eris.Wrapf(err, "feature: read %s", a.opts.OrdersTable)
	}
	return Aggregate(orders, a.opts.Clock.TodayUTC()), nil
}

// Totals are one account's order amounts inside the label windows.
type Totals struct {
	Amount90  float64
	Amount180 float64
}

// Aggregate sums order amounts per account for orders placed at most 90 and
// 180 whole days before today. Orders dated after today count as inside
// both windows. Rows with an unparseable date or amount are ignored.
// orders must have account_id, order_date and total_amount columns in
// that order.
func Aggregate(orders *model.Table, today time.Time) map[string]Totals {
	out := make(map[string]Totals)
	for _, vals := range orders.Rows {
		account, ok := model.Text(vals[0])
		if !ok {
			continue
		}
		placed, ok := model.ParseDate(vals[1])
		if !ok {
			continue
		}
		amount, ok := model.ParseFloat(vals[2])
		if !ok {
			continue
		}

		daysAgo := math.Floor(today.Sub(placed).Hours() / 24)
		t := out[account]
		if daysAgo <= CloseWindowDays {
			t.Amount90 += amount
		}
		if daysAgo <= AmountWindowDays {
			t.Amount180 += amount
		}
		out[account] = t
	}
	return out
}

func normalizeDate(v any) string {
	if t, ok := model.ParseDate(v); ok {
		return t.Format(model.DateLayout)
	}
	s, _ := model.Text(v)
	return s
}
