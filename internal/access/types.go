package access

import "time"

// Profile is a named bundle of permissions and menu visibility.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Assignment links a profile bearer (holder) to a profile. It is only ever
// deactivated, never removed.
type Assignment struct {
	HolderID      string     `json:"holder_id"`
	ProfileID     string     `json:"profile_id"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// MenuNode is one navigation entry. ParentKey may name a node that is not
// visible to a given principal; the tree builder promotes such nodes to roots.
type MenuNode struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	ParentKey string    `json:"parent_key,omitempty"`
	URL       string    `json:"url"`
	Icon      string    `json:"icon,omitempty"`
	Title     string    `json:"title"`
	Order     int       `json:"order"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Grant makes a menu node visible to a profile.
type Grant struct {
	ProfileID     string     `json:"profile_id"`
	MenuID        string     `json:"menu_id"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

// TreeNode is a MenuNode placed in the navigation forest.
type TreeNode struct {
	ID       string      `json:"id"`
	Key      string      `json:"key"`
	URL      string      `json:"url"`
	Icon     string      `json:"icon,omitempty"`
	Title    string      `json:"title"`
	Order    int         `json:"order"`
	Children []*TreeNode `json:"children"`
}
