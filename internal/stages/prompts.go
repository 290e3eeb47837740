package stages

// Stage names as they appear in events, logs, and draft results.
const (
	AnalyzeStage    = "analyze"
	IllustrateStage = "illustrate"
	PersistStage    = "persist"
)

const analyzeSystemPrompt = `You are an imaginative content planner for an interactive toy page.
Given a subject, respond with a single JSON object describing it:
{"subject": string, "mood": string, "palette": [string], "themes": [string], "summary": string}
Respond with JSON only. No prose, no code fences.`

const illustrateSystemPrompt = `You are a content generator for an interactive toy page.
Given a subject and its analysis, respond with a single JSON object:
{"title": string, "body": string, "scenes": [{"caption": string, "description": string}], "alt_text": string}
Keep the tone playful and the body under 200 words.
Respond with JSON only. No prose, no code fences.`
