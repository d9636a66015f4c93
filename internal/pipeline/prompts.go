package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"mealgen/internal/llm"
	"mealgen/pkg/types"
)

var templatesSchema = llm.Schema{
	Name:        "recipe_templates",
	Description: "Return the week's recipe ideas.",
	WrapKey:     "recipes",
	Definition: json.RawMessage(`{
  "type": "object",
  "properties": {
    "recipes": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "description": {"type": "string"},
          "visual_description": {"type": "string"}
        },
        "required": ["title", "description", "visual_description"]
      }
    }
  },
  "required": ["recipes"]
}`),
}

var detailsSchema = llm.Schema{
	Name:        "recipe_details",
	Description: "Return the ingredients and step-by-step instructions for one recipe.",
	Definition: json.RawMessage(`{
  "type": "object",
  "properties": {
    "ingredients": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "quantity": {"type": "string"},
          "unit": {"type": "string"}
        },
        "required": ["name", "quantity", "unit"]
      }
    },
    "instructions": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["ingredients", "instructions"]
}`),
}

var grocerySchema = llm.Schema{
	Name:        "grocery_list",
	Description: "Return the consolidated grocery list.",
	WrapKey:     "grocery_list",
	Definition: json.RawMessage(`{
  "type": "object",
  "properties": {
    "grocery_list": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "quantity": {"type": "string"},
          "unit": {"type": "string"}
        },
        "required": ["name", "quantity", "unit"]
      }
    }
  },
  "required": ["grocery_list"]
}`),
}

func templatesPrompt(n int) string {
	return fmt.Sprintf(`Generate %d easy-to-make, nutritious, and cost-effective meals for the week.
The meals should share some ingredients to minimize waste and extra purchases, while keeping variety.
For each meal provide:
1. title
2. description: one or two sentences
3. visual_description: what the finished plated dish looks like, for a food photographer`, n)
}

func detailsPrompt(t Template) string {
	return fmt.Sprintf(`Write the recipe for %q.
Description: %s
List every ingredient with a quantity and unit, then give simple step-by-step instructions.`, t.Title, t.Description)
}

func imagePrompt(t Template) string {
	visual := t.VisualDescription
	if visual == "" {
		visual = t.Description
	}
	return fmt.Sprintf("Professional food photography of %s. %s Natural light, overhead angle, no text.", t.Title, visual)
}

func groceryPrompt(recipes []types.Recipe) string {
	var b strings.Builder
	b.WriteString("Based on these recipes and their ingredients:\n")
	for _, r := range recipes {
		fmt.Fprintf(&b, "\n%s:\n", r.Title)
		for _, in := range r.Ingredients {
			fmt.Fprintf(&b, "- %s %s %s\n", strings.TrimSpace(in.Quantity), strings.TrimSpace(in.Unit), in.Name)
		}
	}
	fmt.Fprintf(&b, "\nGenerate one consolidated grocery list with the quantities needed for all %d meals. ", len(recipes))
	b.WriteString("Combine similar ingredients into a single entry and adjust quantities and units accordingly.")
	return b.String()
}
