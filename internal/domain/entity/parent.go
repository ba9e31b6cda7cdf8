package entity

// ParentKind tells which aggregate a measurement bills against.
type ParentKind string

const (
	ParentBudget ParentKind = "budget"
	ParentSite   ParentKind = "site"
)

// Parent is either Budget(id) or Site(id), never both and never neither.
// The zero value is invalid and rejected by Validate.
type Parent struct {
	kind ParentKind
	id   string
}

// BudgetParent links a measurement to a budget.
func BudgetParent(id string) Parent {
	return Parent{kind: ParentBudget, id: id}
}

// SiteParent links a measurement directly to a site.
func SiteParent(id string) Parent {
	return Parent{kind: ParentSite, id: id}
}

// ParentFromIDs builds a Parent from the two optional identifiers of the wire format.
func ParentFromIDs(budgetID, siteID string) (Parent, error) {
	switch {
	case budgetID != "" && siteID != "":
		return Parent{}, ErrMissingParent
	case budgetID != "":
		return BudgetParent(budgetID), nil
	case siteID != "":
		return SiteParent(siteID), nil
	default:
		return Parent{}, ErrMissingParent
	}
}

func (p Parent) Kind() ParentKind { return p.kind }

func (p Parent) ID() string { return p.id }

func (p Parent) IsZero() bool { return p.kind == "" || p.id == "" }

// BudgetID returns the budget id when the parent is a budget.
func (p Parent) BudgetID() (string, bool) {
	if p.kind == ParentBudget {
		return p.id, true
	}
	return "", false
}

// SiteID returns the site id when the parent is a site.
func (p Parent) SiteID() (string, bool) {
	if p.kind == ParentSite {
		return p.id, true
	}
	return "", false
}

// Validate rejects the zero Parent.
func (p Parent) Validate() error {
	if p.IsZero() {
		return ErrMissingParent
	}
	return nil
}

func (p Parent) String() string {
	return string(p.kind) + ":" + p.id
}
