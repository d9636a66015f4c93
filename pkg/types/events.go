package types

import "encoding/json"

// EventType names one kind of snapshot emitted by a generation run.
type EventType string

const (
	EventTemplates   EventType = "templates"
	EventUpdates     EventType = "updates"
	EventGroceryList EventType = "grocery_list"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
)

// Terminal reports whether no further events follow this one.
func (t EventType) Terminal() bool { return t == EventComplete || t == EventError }

// Event is one snapshot record written to the client stream.
type Event struct {
	Type        EventType     `json:"type"`
	Recipes     []Recipe      `json:"recipes,omitempty"`
	GroceryList []GroceryItem `json:"grocery_list,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// MarshalJSON keeps each event type's payload key present even when the
// payload is empty, e.g. {"type":"grocery_list","grocery_list":[]}.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type        EventType      `json:"type"`
		Recipes     *[]Recipe      `json:"recipes,omitempty"`
		GroceryList *[]GroceryItem `json:"grocery_list,omitempty"`
		Error       string         `json:"error,omitempty"`
	}
	w := wire{Type: e.Type}
	switch e.Type {
	case EventTemplates, EventUpdates:
		recipes := e.Recipes
		if recipes == nil {
			recipes = []Recipe{}
		}
		w.Recipes = &recipes
	case EventGroceryList:
		items := e.GroceryList
		if items == nil {
			items = []GroceryItem{}
		}
		w.GroceryList = &items
	case EventError:
		w.Error = e.Error
	}
	return json.Marshal(w)
}

// TemplatesEvent builds the first snapshot of a run.
func TemplatesEvent(recipes []Recipe) Event { return Event{Type: EventTemplates, Recipes: recipes} }

// UpdatesEvent carries only the records touched in one wave.
func UpdatesEvent(recipes []Recipe) Event { return Event{Type: EventUpdates, Recipes: recipes} }

// GroceryListEvent carries the consolidated shopping list.
func GroceryListEvent(items []GroceryItem) Event {
	return Event{Type: EventGroceryList, GroceryList: items}
}

// CompleteEvent terminates a successful run.
func CompleteEvent() Event { return Event{Type: EventComplete} }

// ErrorEvent terminates a failed run.
func ErrorEvent(msg string) Event { return Event{Type: EventError, Error: msg} }
