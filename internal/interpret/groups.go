package interpret

import "github.com/ThiagoRGoveia/tracer-ingest/internal/models"

// FieldGroups lists, in conversion order, the fields converted together for
// one report category. No field belongs to more than one group.
type FieldGroups struct {
	Amounts  []string
	Dates    []string
	Booleans []string
}

var flagFields = []string{"Amended", "Amendment"}

var categoryGroups = map[models.Category]FieldGroups{
	models.ContributionData: {
		Amounts:  []string{"ContributionAmount"},
		Dates:    []string{"ContributionDate", "FiledDate"},
		Booleans: flagFields,
	},
	models.ExpenditureData: {
		Amounts:  []string{"ExpenditureAmount"},
		Dates:    []string{"ExpenditureDate", "FiledDate"},
		Booleans: flagFields,
	},
	models.LoanData: {
		Amounts:  []string{"PaymentAmount", "LoanAmount", "InterestRate", "InterestPayment", "LoanBalance"},
		Dates:    []string{"PaymentDate", "FiledDate", "LoanDate"},
		Booleans: flagFields,
	},
}

// GroupsFor returns a copy of the field groups for c.
func GroupsFor(c models.Category) (FieldGroups, error) {
	g, ok := categoryGroups[c]
	if !ok {
		return FieldGroups{}, &UnknownCategoryError{Category: string(c)}
	}
	return FieldGroups{
		Amounts:  append([]string(nil), g.Amounts...),
		Dates:    append([]string(nil), g.Dates...),
		Booleans: append([]string(nil), g.Booleans...),
	}, nil
}
