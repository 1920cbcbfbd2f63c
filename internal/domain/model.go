package domain

// Classifier is the single capability contract every trained classifier
// implements. The ensemble holds a set of values under this interface,
// not a type hierarchy; artifacts of different families (logistic
// regression, decision forests) are interchangeable behind it.
//
// Implementations must be safe for concurrent use and read-only after
// load: a loaded model is never mutated.
type Classifier interface {
	// Name returns the model identifier, e.g. "random_forest".
	Name() string

	// Version returns the artifact version string.
	Version() string

	// PredictProbability returns the fraud probability in [0,1] for the
	// given feature vector. An error marks this classifier as failed for
	// the current request only.
	PredictProbability(vector FeatureVector) (float64, error)
}
