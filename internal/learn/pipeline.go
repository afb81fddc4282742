package learn

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/feature"
)

// Artifact kinds and format version.
const (
	KindClassifier = "logistic_classifier"
	KindRegressor  = "linear_regressor"
	formatVersion  = 1
)

// Classifier is a persisted preprocessing + logistic regression pipeline.
type Classifier struct {
	Kind         string        `json:"kind"`
	Version      int           `json:"version"`
	Preprocessor *Preprocessor `json:"preprocessor"`
	Model        *Logistic     `json:"model"`
}

// Regressor is a persisted preprocessing + linear regression pipeline.
type Regressor struct {
	Kind         string        `json:"kind"`
	Version      int           `json:"version"`
	Preprocessor *Preprocessor `json:"preprocessor"`
	Model        *Linear       `json:"model"`
}

// PredictProbability returns the conversion probability for each row.
func (c *Classifier) PredictProbability(rows []feature.Row) []float64 {
	return c.Model.Probability(c.Preprocessor.Transform(rows), len(rows))
}

// PredictAmount returns the expected deal value for each row.
func (r *Regressor) PredictAmount(rows []feature.Row) []float64 {
	return r.Model.Predict(r.Preprocessor.Transform(rows), len(rows))
}

// Encode serializes the pipeline.
func (c *Classifier) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	return data, eris.Wrap(err, "learn: encode classifier")
}

// Encode serializes the pipeline.
func (r *Regressor) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	return data, eris.Wrap(err, "learn: encode regressor")
}

// DecodeClassifier parses and validates a classifier artifact.
func DecodeClassifier(data []byte) (*Classifier, error) {
	var c Classifier
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "learn: decode classifier")
	}
	if err := checkHeader(c.Kind, KindClassifier, c.Version, c.Preprocessor); err != nil {
		return nil, err
	}
	if c.Model == nil {
		return nil, eris.New("learn: classifier artifact has no model")
	}
	if c.Model.Constant == nil && len(c.Model.Weights) != c.Preprocessor.Width() {
		return nil, eris.Errorf("learn: classifier has %d weights for %d features", len(c.Model.Weights), c.Preprocessor.Width())
	}
	return &c, nil
}

// DecodeRegressor parses and validates a regressor artifact.
func DecodeRegressor(data []byte) (*Regressor, error) {
	var r Regressor
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "learn: decode regressor")
	}
	if err := checkHeader(r.Kind, KindRegressor, r.Version, r.Preprocessor); err != nil {
		return nil, err
	}
	if r.Model == nil {
		return nil, eris.New("learn: regressor artifact has no model")
	}
	if len(r.Model.Coefficients) != r.Preprocessor.Width() {
		return nil, eris.Errorf("learn: regressor has %d coefficients for %d features", len(r.Model.Coefficients), r.Preprocessor.Width())
	}
	return &r, nil
}

func checkHeader(kind, want string, version int, p *Preprocessor) error {
	if kind != want {
		return eris.Errorf("learn: artifact kind %q, want %q", kind, want)
	}
	if version != formatVersion {
		return eris.Errorf("learn: unsupported %s version %d", kind, version)
	}
	if p == nil {
		return eris.Errorf("learn: %s artifact has no preprocessor", kind)
	}
	return nil
}
