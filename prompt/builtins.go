package prompt

// builtins are the templates compiled into the binary. Files in the prompts
// directory override entries by name.
var builtins = []*Template{
	{
		Name:        "ai-news-filter",
		Description: "Classify an AI company blog post as a real announcement or noise.",
		Text: `You are classifying an article from an AI company blog.

Decide whether this article is about a NEW AI feature, model release, significant product update, or major capability announcement.

Articles to POST (answer YES):
- New model releases (e.g. GPT-5, Claude 4, Gemini 2)
- New product features or capabilities
- Major API updates or new APIs
- Significant product launches or updates

Articles to SKIP (answer NO):
- Research papers or technical reports
- Hiring or company culture posts
- Policy, safety, or governance essays
- Business partnerships or funding news
- General thought-leadership or opinion pieces
- Minor blog posts, tutorials, or how-to guides

Title: {title}
Description: {description}

Respond in EXACTLY this format (no extra text):
VERDICT: YES or NO
SUMMARY: 2-3 sentence summary of the announcement (write this even if NO)`,
	},
	{
		Name:        "sc-patch-summary",
		Description: "Summarize Star Citizen patch notes for the gaming channel.",
		Text: `You are summarizing Star Citizen patch notes for a Discord gaming community.

Rules:
- Focus on: new features, new ships, new contracts, new gameplay, and VR updates.
- IGNORE bug fixes entirely; do not mention them.
- Keep it concise (bullet points).
- If there are VR-related changes, put them in their own "VR Updates" section.
- Use Discord markdown formatting (bold, bullet points).
- Do NOT include the patch version in your summary (it will be in the embed title).
- If there is essentially nothing noteworthy beyond bug fixes, just say "This patch is primarily bug fixes and stability improvements."

Patch notes to summarize:
{content}`,
	},
	{
		Name:        "wow-summary",
		Description: "Summarize World of Warcraft patch notes and hotfixes.",
		Text: `You are summarizing World of Warcraft patch notes / hotfixes for a Discord gaming community.

Rules:
- Focus on: class changes, new content, dungeon/raid changes, PvP changes, and notable gameplay updates.
- IGNORE minor bug fixes unless they significantly affect gameplay.
- Keep it concise (bullet points).
- Group by category if there are multiple types of changes (e.g. Classes, Dungeons, Items).
- Use Discord markdown formatting (bold, bullet points).
- Do NOT include the patch title in your summary (it will be in the embed title).
- If there is essentially nothing noteworthy, say "Minor bug fixes and stability improvements."

Patch notes to summarize:
{content}`,
	},
	{
		Name:        "speech-summary",
		Description: "Summarize a political speech transcript neutrally.",
		Text: `You are summarizing a political speech for a Discord server.

Rules:
- Provide a concise, neutral summary of the key points
- Focus on: policy announcements, executive actions, major statements
- Use bullet points for main topics covered
- Note any significant quotes or memorable moments
- Keep it factual and non-partisan
- Use Discord markdown formatting (bold, bullet points)
- Maximum 3-4 paragraphs or ~10 bullet points
- Do NOT include the title or date (that will be in the embed)

Speech transcript to summarize:
{content}`,
	},
	{
		Name:        "nintendo-verify",
		Description: "Confirm a Reddit post is a real Nintendo Direct announcement.",
		Text: `A Reddit post titled "{title}" was found in r/{subreddit}. The post body is:

{body}

Is this post announcing or linking to an actual Nintendo Direct event/stream/video? Or is it just a discussion/speculation/reaction post? Reply with only YES or NO.`,
	},
	{
		Name:        "shopping-actions",
		Description: "Turn a natural-language shopping message into a JSON action.",
		Text: `You are a shopping list assistant. Parse the user's message and determine what action to take.

Current shopping list:
{current_list}

Respond with ONLY valid JSON in one of these formats:

For adding items:
{"action": "add", "items": ["item1", "item2", ...], "confirmation": "short confirmation message"}

For removing items:
{"action": "remove", "items": ["item1", "item2", ...], "confirmation": "short confirmation message"}

For showing the list (if they just want to see it):
{"action": "show", "confirmation": "Here's your list"}

For clearing the list:
{"action": "clear", "confirmation": "List cleared"}

For unrelated messages:
{"action": "none", "confirmation": ""}

Rules:
- Match removal requests intelligently. "remove the fruits" should remove fruit items. "remove fish sticks" matches "fishsticks".
- When removing, match partial names and categories (e.g., "green peppers" matches "peppers", "fruits" matches "bananas", "apples", etc.)
- For adds, extract individual items from natural language ("bananas and peppers and fishsticks" = ["bananas", "peppers", "fishsticks"])
- Keep item names simple and lowercase
- Confirmation should be brief (e.g., "Added 3 items" or "Removed bananas and apples")
- Return ONLY JSON, no other text`,
	},
	{
		Name:        "event-extract",
		Description: "Extract structured event details from text or an image.",
		Text: `Current date/time: {now}

Extract event details. Return ONLY valid JSON:
{
  "title": "event name",
  "start_date": "YYYY-MM-DD",
  "start_time": "HH:MM (24h) or null",
  "end_date": "YYYY-MM-DD or null",
  "end_time": "HH:MM (24h) or null",
  "location": "string or null",
  "description": "string or null"
}

Rules:
- Resolve relative dates ("Saturday", "next Friday") to actual dates
- If year missing, assume current or next occurrence
- If no end time, set null
- Return ONLY JSON`,
	},
	{
		Name:        "location-enrich",
		Description: "Resolve an event location string into a full address.",
		Text: `You are given a location reference from a calendar event and web search results about it. Return ONLY valid JSON with the enriched location info:
{"name": "business/place name", "address": "full street address, city, state zip", "maps_query": "name + address for Google Maps search"}
If the search results don't help identify the place, return null.`,
	},
	{
		Name:        "lunch-menu-extract",
		Description: "Read a school menu calendar image into dated entries.",
		Text: `The images show a school cafeteria menu calendar for {month}.

Extract every dated entry. Return ONLY valid JSON mapping ISO dates to meals:
{
  "YYYY-MM-DD": {"breakfast": "string or empty", "lunch": "string or empty"}
}

Rules:
- Use the month hint to resolve bare day numbers to full dates
- Skip weekends and days marked closed or no school
- Keep meal descriptions short, comma separated
- Return ONLY JSON`,
	},
	{
		Name:        "daily-quote",
		Description: "One short morning quote for the daily briefing.",
		Text:        `Generate a single short quote (1-2 sentences) that is either funny, inspiring, or a mix of both. Perfect for starting someone's morning. Do not include attribution or quotation marks. Just the quote text.`,
	},
	{
		Name:        "ask-system",
		Description: "System persona for the question-answering channel.",
		Text:        `You are Milo, a friendly and helpful family assistant bot. Keep answers concise and family-friendly. If you don't know something, say so honestly.`,
	},
	{
		Name:        "ask-search-context",
		Description: "Appended to the ask persona when web search results exist.",
		Text: `Use the following web search results to inform your answer. Cite sources when relevant.

{results}`,
	},
	{
		Name:        "coloring-page",
		Description: "Image prompt wrapper for coloring book generation.",
		Text:        `Black and white line drawing, coloring book page. Clean clear lines with no shading or gradients. Entirely white background with no additional elements or textures. Simple illustration in the style of a blank coloring book with open space between the lines, without shading, leaving room for hand coloring. Subject: {subject}`,
	},
}
