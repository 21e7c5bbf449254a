package ollama

import "fmt"

func buildAnswerPrompt(question, contextBlock string) string {
	return fmt.Sprintf(`Context:
%s
Question: %s

Answer:`, contextBlock, question)
}
