package domain

import (
	"fmt"
	"strings"
)

// SystemContext is the system message sent to every language-model provider.
const SystemContext = "You are a helpful assistant that explains social media posts by providing clear, factual context."

const promptTemplate = `You are explaining a social media post to someone who is unfamiliar with its context or references.

ORIGINAL POST:
"%s"

SEARCH RESULTS FOR CONTEXT:
%s

INSTRUCTIONS:
1. Generate 3-5 bullet points explaining what this post is about
2. Each bullet should be concise (1-2 sentences max)
3. Focus on:
   - What is being referenced? (terms, people, events, memes)
   - Why does it matter or why is it interesting?
   - Key background context needed to understand the post
4. Add citation numbers [1], [2], etc. at the end of statements, referencing the sources above
5. Only include information that is supported by the search results
6. If search results don't provide enough context, acknowledge this honestly

RESPONSE FORMAT:
Return ONLY the bullet points in this exact format:
` + "•" + ` [First explanation point] [1]
` + "•" + ` [Second explanation point] [2]
` + "•" + ` [Third explanation point] [1][3]
(etc.)

Do NOT include any preamble, headers, or additional text. Start directly with the first bullet point.`

// BuildExplanationPrompt renders the synthesis prompt: the post plus the
// numbered source context whose [i] markers the model cites back.
func BuildExplanationPrompt(postText string, sources []Source) string {
	searchContext := "No relevant search results found."
	if len(sources) > 0 {
		blocks := make([]string, len(sources))
		for i, s := range sources {
			blocks[i] = fmt.Sprintf("[%d] %s\n    URL: %s\n    Content: %s", s.ID, s.Title, s.URL, s.Snippet)
		}
		searchContext = strings.Join(blocks, "\n\n")
	}
	return fmt.Sprintf(promptTemplate, postText, searchContext)
}
