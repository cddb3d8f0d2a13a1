// Package fulfillment decides whether an offer ships through the platform
// (FBA), from the merchant (FBM), or cannot be told.
package fulfillment

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/guarzo/offerscout/internal/model"
	"github.com/guarzo/offerscout/internal/normalize"
)

// Rule names the decision step that produced a classification.
type Rule string

const (
	RuleExplicitFlag   Rule = "explicit_flag"
	RulePlatformSeller Rule = "platform_seller"
	RuleTextMarker     Rule = "text_marker"
	RuleSellerPresent  Rule = "seller_present"
	RuleNoSeller       Rule = "no_seller"
)

// Config lists the signals the classifier trusts.
type Config struct {
	// PlatformSellers are normalized seller ids of the marketplace itself.
	PlatformSellers []string
	// Markers are lower-case phrases that mean "fulfilled by the platform"
	// when found in shipping, stock or ships-from text.
	Markers  []string
	FBAFlags []string
	FBMFlags []string
}

// DefaultConfig recognizes Amazon storefronts in English and Japanese.
func DefaultConfig() Config {
	return Config{
		PlatformSellers: []string{
			"amazon", "amazon.com", "amazon.co.jp", "amazon.co.uk", "amazon.de",
			"amazon.fr", "amazon.ca", "amazon.com.au", "amazon.com services llc",
			"amazon.co.jp 発送",
		},
		Markers: []string{
			"fulfilled by amazon", "fulfillment by amazon", "ships from amazon",
			"shipped by amazon",
			"amazonが発送", "amazon.co.jpが発送", "amazon.co.jp が発送", "出荷元 amazon",
			"発送元 amazon",
		},
		FBAFlags: []string{"fba", "true", "yes", "y", "1", "afn", "amazon", "fulfilled by amazon"},
		FBMFlags: []string{"fbm", "false", "no", "n", "0", "mfn", "merchant", "fulfilled by merchant", "seller"},
	}
}

// Classifier applies the decision order explicit flag, platform seller,
// text marker, seller presence. It holds no mutable state.
type Classifier struct {
	platform map[string]bool
	markers  []string
	fba      map[string]bool
	fbm      map[string]bool
}

// New builds a Classifier; nil slices fall back to DefaultConfig.
func New(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.PlatformSellers == nil {
		cfg.PlatformSellers = def.PlatformSellers
	}
	if cfg.Markers == nil {
		cfg.Markers = def.Markers
	}
	if cfg.FBAFlags == nil {
		cfg.FBAFlags = def.FBAFlags
	}
	if cfg.FBMFlags == nil {
		cfg.FBMFlags = def.FBMFlags
	}

	c := &Classifier{
		platform: toSet(cfg.PlatformSellers),
		fba:      toSet(cfg.FBAFlags),
		fbm:      toSet(cfg.FBMFlags),
	}
	for _, m := range cfg.Markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			c.markers = append(c.markers, m)
		}
	}
	return c
}

// Classify returns the fulfillment channel for an offer.
func (c *Classifier) Classify(raw model.RawOffer, offer model.Offer) model.FulfillmentChannel {
	ch, _ := c.Explain(raw, offer)
	return ch
}

// Explain is Classify plus the rule that decided it.
func (c *Classifier) Explain(raw model.RawOffer, offer model.Offer) (model.FulfillmentChannel, Rule) {
	if ch, ok := c.explicit(raw.FulfillmentFlag); ok {
		return ch, RuleExplicitFlag
	}
	if offer.SellerID != "" && c.platform[offer.SellerID] {
		return model.FulfillmentFBA, RulePlatformSeller
	}
	if c.hasMarker(raw) {
		return model.FulfillmentFBA, RuleTextMarker
	}
	if offer.SellerID != "" {
		return model.FulfillmentFBM, RuleSellerPresent
	}
	return model.FulfillmentUnknown, RuleNoSeller
}

// Apply classifies every offer in place. raws and offers are parallel.
// At debug level the deciding rule is logged per offer.
func (c *Classifier) Apply(raws []model.RawOffer, offers []model.Offer) {
	debug := logrus.IsLevelEnabled(logrus.DebugLevel)
	for i := range offers {
		if i >= len(raws) {
			return
		}
		ch, rule := c.Explain(raws[i], offers[i])
		offers[i].Fulfillment = ch
		if debug {
			logrus.WithFields(logrus.Fields{
				"seller":      offers[i].SellerID,
				"fulfillment": ch,
				"rule":        rule,
			}).Debug("Classifier: classified offer")
		}
	}
}

func (c *Classifier) explicit(flag string) (model.FulfillmentChannel, bool) {
	f := strings.ToLower(strings.Join(strings.Fields(flag), " "))
	switch {
	case f == "":
		return model.FulfillmentUnknown, false
	case c.fba[f]:
		return model.FulfillmentFBA, true
	case c.fbm[f]:
		return model.FulfillmentFBM, true
	}
	return model.FulfillmentUnknown, false
}

func (c *Classifier) hasMarker(raw model.RawOffer) bool {
	if id := normalize.SellerID(raw.ShipsFrom); id != "" && c.platform[id] {
		return true
	}
	for _, text := range []string{raw.ShippingText, raw.StockText, raw.ShipsFrom} {
		lower := strings.ToLower(text)
		if lower == "" {
			continue
		}
		for _, m := range c.markers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	return set
}
