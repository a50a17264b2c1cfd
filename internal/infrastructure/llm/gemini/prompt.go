package gemini

import "fmt"

const maxPromptText = 8000

func clip(text string) string {
	if len(text) > maxPromptText {
		return text[:maxPromptText]
	}
	return text
}

func buildGuidancePrompt(originalSteps, onlineLink string) string {
	return fmt.Sprintf(`You are an expert in creating user-friendly permit application guidance.

ORIGINAL PERMIT REQUIREMENTS:
%s

ONLINE PORTAL LINK:
%s

INSTRUCTIONS:
1. Identify each distinct requirement in the original text.
2. Rewrite each one as a clear action telling the user exactly what to DO.
3. Keep the SAME ORDER as the original requirements.
4. Keep concrete details: addresses, fees, timeframes, contact info, pickup locations.
5. Use simple language a homeowner can follow.

FORMAT YOUR RESPONSE AS:
Step 1: [action]
Step 2: [action]
...and so on

Do not use any markdown formatting like ** or ##. Plain text only.`, clip(originalSteps), onlineLink)
}

func buildPlansetAddressPrompt(firstPageText string) string {
	return fmt.Sprintf(`Extract the CUSTOMER/PROPERTY address from this solar planset text.

Look for:
- "RESIDENCE LOCATED AT" followed by an address
- "PROPERTY ADDRESS" or "CUSTOMER ADDRESS"
- the installation or service address of the solar PV system

Ignore contractor, utility company, and engineering firm addresses.

Return ONLY the complete address as: [Street Number] [Street Name], [City], [State] [ZIP]
If no customer address is found, return "N/A".

Planset Text:
%s`, clip(firstPageText))
}

func buildUtilityAddressPrompt(billText string) string {
	return fmt.Sprintf(`Extract the customer service address or billing address from this utility bill text.
Look for the address where the service is provided, not the utility company's address.
Return only the complete address (street, city, state, ZIP) or "N/A" if not found.

Utility Bill Text:
%s`, clip(billText))
}

func buildUtilityImagePrompt() string {
	return `Read this utility bill image and return a strict JSON object with keys:
customer_address (string), billing_period (string), energy_consumption (string),
account_number (string), utility_company (string).
Use "" for anything not present. No markdown, no extra keys.`
}
