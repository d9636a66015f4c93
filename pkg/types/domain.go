package types

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	// example: chicken thighs
	Name string `json:"name" example:"chicken thighs"`
	// example: 500
	Quantity string `json:"quantity" example:"500"`
	// example: g
	Unit string `json:"unit" example:"g"`
}

// GroceryItem is one consolidated entry of the week's shopping list.
type GroceryItem struct {
	// example: onion
	Name string `json:"name" example:"onion"`
	// example: 3
	Quantity string `json:"quantity" example:"3"`
	// example: pieces
	Unit string `json:"unit" example:"pieces"`
}

// Recipe is the wire form of one recipe record as it evolves during a run.
// Ingredients and Instructions are always encoded as arrays, never null.
type Recipe struct {
	// Stable identifier within one run.
	// example: 1
	ID int `json:"id" example:"1"`
	// example: Lemon Herb Chicken
	Title string `json:"title" example:"Lemon Herb Chicken"`
	// example: Pan-seared chicken with a bright lemon and herb sauce.
	Description string `json:"description" example:"Pan-seared chicken with a bright lemon and herb sauce."`
	// Prompt material for the image model.
	VisualDescription string       `json:"visual_description"`
	Ingredients       []Ingredient `json:"ingredients"`
	Instructions      []string     `json:"instructions"`
	// Base64 JPEG, null until an image is available (or permanently when none could be produced).
	Image *string `json:"image"`
	// True while the image sub-task is outstanding.
	ImageLoading bool `json:"image_loading"`
	// True while the detail sub-task is outstanding.
	DetailLoading bool `json:"detail_loading"`
	// True when detail generation failed permanently for this recipe.
	DetailFailed bool `json:"detail_failed"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r Recipe) Clone() Recipe {
	out := r
	out.Ingredients = append(make([]Ingredient, 0, len(r.Ingredients)), r.Ingredients...)
	out.Instructions = append(make([]string, 0, len(r.Instructions)), r.Instructions...)
	if r.Image != nil {
		img := *r.Image
		out.Image = &img
	}
	return out
}
