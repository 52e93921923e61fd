package summary

import (
	"fmt"
	"strings"

	"github.com/jamesrr39/tourmap-app/tagfilter"
	"github.com/jamesrr39/tourmap-app/tourmap"
)

// DefaultMaxPromptElements bounds how many elements are described to the model
const DefaultMaxPromptElements = 60

// tags worth showing the model, in the order they are listed
var salientTagKeys = []string{
	"tourism",
	"historic",
	"amenity",
	"leisure",
	"natural",
	"heritage",
	"cuisine",
	"opening_hours",
	"website",
	"wikipedia",
	"description",
}

const tableInstructions = `Always answer with exactly one Markdown table, followed by a short narrative.
The table must have these columns, in this order, with these exact headers:
| Name | Description | Popularity | Insider Tips | Latitude | Longitude |
Rules for the table:
- One row per place. Only include places from the data below.
- Latitude and Longitude are plain decimal numbers (for example 47.3769), with no units, symbols or formatting.
- Do not put the "|" character inside a cell.
After the table, write the narrative as plain paragraphs. Do not add a second table.`

// BuildPrompt combines the user's request with a description of the elements and the output format the parser expects
func BuildPrompt(userPrompt string, elements []*tourmap.Element, taxonomy *tagfilter.Taxonomy, maxElements int) string {
	if maxElements <= 0 {
		maxElements = DefaultMaxPromptElements
	}

	sb := new(strings.Builder)
	sb.WriteString("You are a local tour guide summarising nearby places for a visitor.\n\n")

	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		userPrompt = "Summarise the most interesting places to visit."
	}
	sb.WriteString("Request: " + userPrompt + "\n\n")

	sb.WriteString(tableInstructions)
	sb.WriteString("\n\nPlaces (name; category; latitude,longitude; tags):\n")

	described := 0
	for _, el := range elements {
		if described >= maxElements {
			break
		}

		line, ok := describeElement(el, taxonomy)
		if !ok {
			continue
		}
		sb.WriteString("- " + line + "\n")
		described++
	}

	if described == 0 {
		sb.WriteString("(no places found)\n")
	}

	return sb.String()
}

// describeElement gives a one-line description. Elements without a position cannot become markers, so are left out.
func describeElement(el *tourmap.Element, taxonomy *tagfilter.Taxonomy) (string, bool) {
	position, ok := el.Position()
	if !ok {
		return "", false
	}

	name := el.Name()
	if name == "" {
		name = "(unnamed " + string(el.Type) + ")"
	}

	group := tagfilter.CategoryOther
	if taxonomy != nil {
		group = taxonomy.Group(el.Tags)
	}

	var tagStrings []string
	for _, key := range salientTagKeys {
		value, ok := el.Tags[key]
		if !ok {
			continue
		}
		tagStrings = append(tagStrings, key+"="+value)
	}

	return fmt.Sprintf("%s; %s; %.6f,%.6f; %s", name, group, position.Lat, position.Lon, strings.Join(tagStrings, ", ")), true
}
