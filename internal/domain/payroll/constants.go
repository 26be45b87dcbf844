package payroll

const (
	RunStateEmpty     = "empty"
	RunStatePopulated = "populated"
	RunStateComputed  = "computed"
	RunStateExported  = "exported"

	WarningBelowMinimumWage    = "below_minimum_wage"
	WarningMissingTaxID        = "missing_tax_id"
	WarningBaseAtCap           = "base_at_cap"
	WarningNegativeNet         = "negative_net"
	WarningUnknownRiskCategory = "unknown_risk_category"

	RiskCategoryA = "A"
	RiskCategoryB = "B"
	RiskCategoryC = "C"

	ExportFormatPDF = "pdf"
	ExportFormatCSV = "csv"

	AuditRecordSaved         = "record.saved"
	AuditDeclarationComputed = "declaration.computed"
	AuditDeclarationExported = "declaration.exported"

	AuditEntityRecord      = "compensation_record"
	AuditEntityDeclaration = "declaration_run"
)

// Bucket is the treatment an earnings amount receives in the wage bases.
type Bucket string

const (
	BucketTaxable          Bucket = "taxable"
	BucketContributionOnly Bucket = "contribution_only"
	BucketExempt           Bucket = "exempt"
	BucketBenefitInKind    Bucket = "benefit_in_kind"
)

// EarningsTag is the canonical earnings type a free-text label normalizes to.
type EarningsTag string

const (
	TagOvertime       EarningsTag = "overtime"
	TagBonus          EarningsTag = "bonus"
	TagSeniority      EarningsTag = "seniority"
	TagHousing        EarningsTag = "housing"
	TagTransport      EarningsTag = "transport"
	TagMeal           EarningsTag = "meal"
	TagSoiling        EarningsTag = "soiling"
	TagRepresentation EarningsTag = "representation"
	TagBenefitInKind  EarningsTag = "benefit_in_kind"
	TagOther          EarningsTag = "other"
)
