package core

import "fmt"

// TransferPlan lists the row-level changes needed to take one user's records
// out of a family. Expenses already carry their destination category ids.
type TransferPlan struct {
	UserID string

	// Expenses and Categories leave the source family.
	Expenses   []Expense
	Categories []Category

	// Clones are new categories created at the destination for moving
	// expenses whose category stays behind.
	Clones []Category

	// Reowned are categories that stay in the source family under a new
	// owner because a remaining member's expense still references them.
	Reowned []Category

	// Substitutes are source-side copies of moving categories that remaining
	// members' expenses still reference. Repointed are those expenses with
	// their category id switched to the copy.
	Substitutes []Category
	Repointed   []Expense

	// Remaining is the source member list after the user leaves.
	Remaining []FamilyMember
}

// SourceEmpty reports whether the source family has no members left.
func (p TransferPlan) SourceEmpty() bool {
	return len(p.Remaining) == 0
}

// PlanAccept partitions source for a user joining another family. Every
// record the user owns moves with them. Remaining expenses filed under a
// moving category are refiled under a copy owned by the expense's owner.
func PlanAccept(source Family, userID string, newID func() string) TransferPlan {
	return planMove(source, userID, newID, func(Category) (string, bool) {
		return "", false
	})
}

// PlanRemoval partitions source for a member being removed. A category the
// member owns stays behind when another member's expense references it, and
// is handed to the first such member.
func PlanRemoval(source Family, memberID string, newID func() string) TransferPlan {
	usedBy := make(map[string]string)
	for _, e := range source.Expenses {
		if e.UserID == memberID {
			continue
		}
		if _, seen := usedBy[e.CategoryID]; !seen {
			usedBy[e.CategoryID] = e.UserID
		}
	}
	return planMove(source, memberID, newID, func(c Category) (string, bool) {
		owner, ok := usedBy[c.ID]
		return owner, ok
	})
}

// planMove builds a plan. stays decides, for a category owned by userID,
// whether it remains in source and who owns it afterwards.
func planMove(source Family, userID string, newID func() string, stays func(Category) (string, bool)) TransferPlan {
	plan := TransferPlan{UserID: userID}

	moving := make(map[string]bool)
	for _, c := range source.Categories {
		if c.UserID != userID {
			continue
		}
		if owner, ok := stays(c); ok {
			c.UserID = owner
			plan.Reowned = append(plan.Reowned, c)
			continue
		}
		moving[c.ID] = true
		plan.Categories = append(plan.Categories, c)
	}

	cloned := make(map[string]string)
	for _, e := range source.Expenses {
		if e.UserID != userID {
			continue
		}
		if !moving[e.CategoryID] {
			if c, ok := source.Category(e.CategoryID); ok {
				id, done := cloned[c.ID]
				if !done {
					id = newID()
					cloned[c.ID] = id
					plan.Clones = append(plan.Clones, Category{ID: id, Name: c.Name, Color: c.Color, UserID: userID})
				}
				e.CategoryID = id
			}
		}
		plan.Expenses = append(plan.Expenses, e)
	}

	substitute := make(map[string]string)
	for _, e := range source.Expenses {
		if e.UserID == userID || !moving[e.CategoryID] {
			continue
		}
		id, done := substitute[e.CategoryID]
		if !done {
			c, _ := source.Category(e.CategoryID)
			id = newID()
			substitute[e.CategoryID] = id
			plan.Substitutes = append(plan.Substitutes, Category{ID: id, Name: c.Name, Color: c.Color, UserID: e.UserID})
		}
		e.CategoryID = id
		plan.Repointed = append(plan.Repointed, e)
	}

	for _, m := range source.Members {
		if m.ID != userID {
			plan.Remaining = append(plan.Remaining, m)
		}
	}
	return plan
}

// Apply returns the source and destination families after the plan runs,
// with member as the user's entry at the destination. It mirrors the row
// writes the stores perform and is used to reason about the result.
func (p TransferPlan) Apply(source, dest Family, member FamilyMember) (Family, Family) {
	leaving := make(map[string]bool, len(p.Expenses)+len(p.Categories))
	for _, e := range p.Expenses {
		leaving[e.ID] = true
	}
	for _, c := range p.Categories {
		leaving[c.ID] = true
	}
	reowned := make(map[string]Category, len(p.Reowned))
	for _, c := range p.Reowned {
		reowned[c.ID] = c
	}
	repointed := make(map[string]Expense, len(p.Repointed))
	for _, e := range p.Repointed {
		repointed[e.ID] = e
	}

	src := source
	src.Members = append([]FamilyMember(nil), p.Remaining...)
	src.Expenses = nil
	for _, e := range source.Expenses {
		if leaving[e.ID] {
			continue
		}
		if r, ok := repointed[e.ID]; ok {
			e = r
		}
		src.Expenses = append(src.Expenses, e)
	}
	src.Categories = nil
	for _, c := range source.Categories {
		if leaving[c.ID] {
			continue
		}
		if r, ok := reowned[c.ID]; ok {
			c = r
		}
		src.Categories = append(src.Categories, c)
	}
	src.Categories = append(src.Categories, p.Substitutes...)

	dst := dest
	dst.Members = append(append([]FamilyMember(nil), dest.Members...), member)
	dst.Categories = append(append(append([]Category(nil), dest.Categories...), p.Categories...), p.Clones...)
	dst.Expenses = append(append([]Expense(nil), dest.Expenses...), p.Expenses...)
	return src, dst
}

// CheckFamily verifies the structural invariants of a family: at least one
// member, unique member ids, and every expense and category owned by a member.
func CheckFamily(f Family) error {
	if len(f.Members) == 0 {
		return fmt.Errorf("family %s has no members", f.ID)
	}
	members := make(map[string]bool, len(f.Members))
	for _, m := range f.Members {
		if members[m.ID] {
			return fmt.Errorf("family %s lists member %s twice", f.ID, m.ID)
		}
		members[m.ID] = true
	}
	for _, e := range f.Expenses {
		if !members[e.UserID] {
			return fmt.Errorf("family %s holds expense %s of non-member %s", f.ID, e.ID, e.UserID)
		}
	}
	for _, c := range f.Categories {
		if !members[c.UserID] {
			return fmt.Errorf("family %s holds category %s of non-member %s", f.ID, c.ID, c.UserID)
		}
	}
	return nil
}
