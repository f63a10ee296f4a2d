package access

import (
	"context"
	"errors"
)

// StandardProfiles are the access profiles every deployment starts with.
var StandardProfiles = []ProfileInput{
	{ID: ProfileOrganization, Name: "Organization", Description: "Organization access with full gift management features"},
	{ID: ProfileIndividual, Name: "Individual", Description: "Individual user access with limited features"},
	{ID: ProfileAdministrator, Name: "Administrator", Description: "Full system administrator access"},
}

// StarterMenus is the navigation skeleton granted by Bootstrap.
var StarterMenus = []MenuInput{
	{Key: "dashboard", URL: "/dashboard", Icon: "dashboard", Title: "Dashboard", Order: 1},
	{Key: "gift", URL: "/gift", Icon: "gift", Title: "Gift", Order: 2},
	{Key: "gift-fruit", ParentKey: "gift", URL: "/gift/fruit", Icon: "apple", Title: "Gift Fruit", Order: 1},
	{Key: "gift-flower", ParentKey: "gift", URL: "/gift/flower", Icon: "flower", Title: "Gift Flower", Order: 2},
	{Key: "relation", URL: "/relation", Icon: "people", Title: "Relation", Order: 3},
	{Key: "picks", URL: "/picks", Icon: "bookmark", Title: "Picks", Order: 4},
	{Key: "organizations", URL: "/organizations", Icon: "business", Title: "Organizations", Order: 5},
	{Key: "organizations-overview", ParentKey: "organizations", URL: "/organizations/overview", Icon: "dashboard", Title: "Overview", Order: 1},
	{Key: "organizations-members", ParentKey: "organizations", URL: "/organizations/members", Icon: "people", Title: "Members", Order: 2},
	{Key: "reports", URL: "/reports", Icon: "chart", Title: "Reports", Order: 6},
}

// StarterGrants maps profile id to granted menu keys. The administrator
// profile receives every starter menu.
var StarterGrants = map[string][]string{
	ProfileOrganization: {"dashboard", "gift", "picks", "organizations", "organizations-overview", "organizations-members", "reports"},
	ProfileIndividual:   {"dashboard", "relation", "picks"},
}

// Bootstrap creates the standard profiles, the starter menus and their
// grants. Existing rows are left alone, so it is safe to run repeatedly.
func Bootstrap(ctx context.Context, admin *Admin) error {
	for _, p := range StandardProfiles {
		if _, err := admin.CreateProfile(ctx, p); err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
	}
	allKeys := make([]string, 0, len(StarterMenus))
	for _, m := range StarterMenus {
		allKeys = append(allKeys, m.Key)
		if _, err := admin.CreateMenu(ctx, m); err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
	}
	grants := map[string][]string{ProfileAdministrator: allKeys}
	for id, keys := range StarterGrants {
		grants[id] = keys
	}
	for id, keys := range grants {
		existing, err := admin.ProfileMenus(ctx, id)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		if err := admin.AssignMenusByKey(ctx, id, keys); err != nil {
			return err
		}
	}
	return nil
}
