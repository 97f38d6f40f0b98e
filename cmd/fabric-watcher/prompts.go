package main

const fabricAssistantInstructions = "You are a helpful fashion assistant."

const describeFabricPrompt = `Please describe:
1. The material (e.g., silk, cotton, net)
2. The texture (e.g., smooth, sheer, stiff)
3. Primary colors present
4. Any visible embellishments (e.g., embroidery, mirror work, sequins)
5. Whether it has borders or ornate zones, and where
Respond in JSON format with these keys: material, texture, colors, embellishments, embellishment_description.`

func describePrompt(viewHint string) string {
	if viewHint == "" {
		return describeFabricPrompt
	}
	return viewHint + "\n\n" + describeFabricPrompt
}
