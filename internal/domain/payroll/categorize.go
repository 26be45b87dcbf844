package payroll

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type labelRule struct {
	tag      EarningsTag
	keywords []string
}

// labelRules is evaluated in order and the first match wins, so specific
// allowance keywords sit ahead of the generic "prime"/"bonus" ones.
var labelRules = []labelRule{
	{TagBenefitInKind, []string{"avantage en nature", "avantages en nature", "benefit in kind", "in kind", "in-kind"}},
	{TagTransport, []string{"transport", "deplacement", "travel"}},
	{TagMeal, []string{"repas", "panier", "meal", "lunch"}},
	{TagSoiling, []string{"salissure", "soiling"}},
	{TagRepresentation, []string{"representation", "entertainment"}},
	{TagHousing, []string{"logement", "housing", "loyer"}},
	{TagOvertime, []string{"heure sup", "heures sup", "overtime"}},
	{TagSeniority, []string{"anciennete", "seniority"}},
	{TagBonus, []string{"prime", "bonus", "gratification", "13e mois", "treizieme mois"}},
}

var bucketByTag = map[EarningsTag]Bucket{
	TagOvertime:       BucketTaxable,
	TagBonus:          BucketTaxable,
	TagSeniority:      BucketTaxable,
	TagHousing:        BucketTaxable,
	TagTransport:      BucketContributionOnly,
	TagMeal:           BucketExempt,
	TagSoiling:        BucketExempt,
	TagRepresentation: BucketExempt,
	TagBenefitInKind:  BucketBenefitInKind,
	TagOther:          BucketExempt,
}

// BucketFor returns the bucket an earnings tag is assigned to. Unknown tags
// are exempt.
func BucketFor(tag EarningsTag) Bucket {
	if bucket, ok := bucketByTag[tag]; ok {
		return bucket
	}
	return BucketExempt
}

// NormalizeLabel maps a free-text earnings label to its canonical tag.
func NormalizeLabel(label string) EarningsTag {
	folded := foldLabel(label)
	if folded == "" {
		return TagOther
	}
	for _, rule := range labelRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(folded, keyword) {
				return rule.tag
			}
		}
	}
	return TagOther
}

// NormalizeLineItems returns a copy of items with every Tag resolved. Known
// tags supplied by the caller are kept as-is.
func NormalizeLineItems(items []EarningsLineItem) []EarningsLineItem {
	out := make([]EarningsLineItem, len(items))
	for i, item := range items {
		out[i] = item
		if _, known := bucketByTag[item.Tag]; !known {
			out[i].Tag = NormalizeLabel(item.Label)
		}
	}
	return out
}

// Categorize partitions every earnings amount of the record into exactly one
// bucket. The named transport and housing fields bypass label matching.
func Categorize(record CompensationRecord) CategorizedEarnings {
	var out CategorizedEarnings
	for _, item := range NormalizeLineItems(record.LineItems) {
		out.add(BucketFor(item.Tag), item.Amount)
	}
	out.add(BucketContributionOnly, record.TransportAllowance)
	out.add(BucketTaxable, record.HousingAllowance)
	return out
}

func (c *CategorizedEarnings) add(bucket Bucket, amount decimal.Decimal) {
	amount = nonNegative(amount)
	switch bucket {
	case BucketTaxable:
		c.Taxable = c.Taxable.Add(amount)
	case BucketContributionOnly:
		c.ContributionOnly = c.ContributionOnly.Add(amount)
	case BucketBenefitInKind:
		c.BenefitInKind = c.BenefitInKind.Add(amount)
	default:
		c.Exempt = c.Exempt.Add(amount)
	}
}

func foldLabel(label string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripper, label)
	if err != nil {
		folded = label
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
