package main

import (
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
)

const designerInstructions = "You are a creative but practical fashion designer."

const inspirationIntro = "These are inspiration photos that reflect my style."

func fabricImagesIntro(selection string) string {
	return fmt.Sprintf("These are fabric images for: '%s'. Use these for upcycling.", selection)
}

// buildDesignPrompt asks for n ideas, each closing with a "DALL·E Prompt:" line that
// image-generator picks up later.
func buildDesignPrompt(selection string, fabrics []fabric.FabricRecord, n int) string {
	lines := make([]string, 0, len(fabrics))
	for _, r := range fabrics {
		lines = append(lines, fabric.SummaryLine(r))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Using the provided inspiration and fabric images for '%s', generate %d trendy upcycled clothing ideas.\n\n", selection, n)
	fmt.Fprintf(&b, "Here are details about the selected fabrics:\n%s\n\n", strings.Join(lines, "\n"))
	b.WriteString(`For each idea:
- Name the garment (e.g., halter top, peplum blouse, two-piece set)
- Describe exactly what the garment looks like in vivid visual detail
- Specify which angle or fabric photo influenced the key design elements
- Explain why this matches the user's aesthetic
- At the end of each idea, include a DALL·E-style prompt in the format:
  DALL·E Prompt: [describe the final garment visually in a single sentence, e.g., 'a white halter crop top with gold embroidery and flared peplum waist, photographed on a hanger']

Make sure the DALL·E prompt includes fabric type, color, cut, embroidery/embellishment styles, and the setting (e.g., on a model, mannequin, or flat lay).`)
	return b.String()
}
