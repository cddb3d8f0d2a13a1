package aggregate

import (
	"github.com/guarzo/offerscout/internal/fulfillment"
	"github.com/guarzo/offerscout/internal/model"
	"github.com/guarzo/offerscout/internal/normalize"
)

// Result is everything the engine produces for one product.
type Result struct {
	ProductID string
	Offers    []model.ScoredOffer
	Summary   model.ProductSummary
}

// Engine chains normalize, classify and aggregate. Each call owns its input
// and output, so one Engine can serve many goroutines.
type Engine struct {
	normalizer *normalize.Normalizer
	classifier *fulfillment.Classifier
	aggregator *Aggregator
}

// NewEngine wires the pipeline stages together.
func NewEngine(n *normalize.Normalizer, c *fulfillment.Classifier, a *Aggregator) *Engine {
	return &Engine{normalizer: n, classifier: c, aggregator: a}
}

// Process runs the full pipeline over one product's complete offer list.
// It never fails; an empty list yields a "no data" summary.
func (e *Engine) Process(productID string, raws []model.RawOffer) Result {
	offers := e.normalizer.NormalizeAll(raws)
	e.classifier.Apply(raws, offers)
	ordered, summary := e.aggregator.Aggregate(productID, offers)
	return Result{
		ProductID: productID,
		Offers:    ordered,
		Summary:   summary,
	}
}
