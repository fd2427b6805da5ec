// Package appcontext extracts a JSON snapshot of a Rails application's
// models, schema, routes and controllers, and detects when that snapshot
// no longer matches the source tree.
package appcontext

import "time"

// Context is an immutable snapshot of an application's structure. A new
// extraction supersedes it; it is never updated in place.
type Context struct {
	AppName     string           `json:"app_name"`
	GeneratedAt time.Time        `json:"generated_at"`
	Hash        string           `json:"hash"`
	Models      []Model          `json:"models"`
	Schema      map[string]Table `json:"schema"`
	Routes      []Route          `json:"routes"`
	Controllers []Controller     `json:"controllers"`
	Modules     []string         `json:"modules"`
	Warnings    []ParseWarning   `json:"warnings,omitempty"`
}

// Model is an ActiveRecord model found under app/models
type Model struct {
	File         string        `json:"file"`
	ClassName    string        `json:"class_name"`
	Superclass   string        `json:"superclass,omitempty"`
	Validations  []Validation  `json:"validations"`
	Associations []Association `json:"associations"`
	Scopes       []Scope       `json:"scopes"`
}

// Validation is a `validates` or `validate` call
type Validation struct {
	Kind       string   `json:"kind"`
	Attributes []string `json:"attributes"`
	Options    string   `json:"options,omitempty"`
}

// Association is a belongs_to / has_many / has_one / has_and_belongs_to_many call
type Association struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Options string `json:"options,omitempty"`
}

// Scope is a `scope :name, -> { ... }` declaration
type Scope struct {
	Name string `json:"name"`
	Body string `json:"body,omitempty"`
}

// Table is a create_table block from db/schema.rb
type Table struct {
	Columns map[string]Column `json:"columns"`
	Indexes []Index           `json:"indexes"`
}

// Column is a single table column
type Column struct {
	Type    string            `json:"type"`
	Options map[string]string `json:"options,omitempty"`
}

// Index is a t.index or add_index declaration
type Index struct {
	Columns []string          `json:"columns"`
	Options map[string]string `json:"options,omitempty"`
}

// Route is one HTTP route from config/routes.rb
type Route struct {
	Verb       string `json:"verb"`
	Path       string `json:"path"`
	Controller string `json:"controller"`
	Action     string `json:"action"`
}

// Controller is a controller class under app/controllers
type Controller struct {
	File      string   `json:"file"`
	ClassName string   `json:"class_name"`
	Actions   []string `json:"actions"`
}

// ParseWarning records a place where best-effort parsing degraded.
// Extraction never fails on malformed Ruby; it reports here instead.
type ParseWarning struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// Model returns the model with the given class name
func (c *Context) Model(className string) (*Model, bool) {
	for i := range c.Models {
		if c.Models[i].ClassName == className {
			return &c.Models[i], true
		}
	}
	return nil, false
}

// TableNames returns the schema's table names in sorted order
func (c *Context) TableNames() []string {
	return sortedKeys(c.Schema)
}
