package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/catalog-assistant/internal/core/domain"
)

const (
	// AnswerLanguageInstruction is the default system instruction for every generation.
	AnswerLanguageInstruction = "Rispondi sempre in italiano."

	GreetingMessage = "Ciao, come posso aiutarti?"

	NoEvidenceMessage = "Mi dispiace ma non ho trovato informazioni riguardo la tua domanda.\n" +
		"Prova a riformularla o a chiedermi qualcos'altro.\n" +
		"Se ritieni che la mancanza di queste informazioni sia un errore, vuoi che apra una richiesta di supporto a DMO?"

	OutOfScopeMessage = "Mi dispiace, la tua domanda non sembra riguardare alcun asset nel vecchio o nel nuovo DWH."

	IssueReportedMessage = "Grazie per la segnalazione. La problematica riscontrata verrà inviata a un assistente " +
		"che provvederà alla verifica manuale."

	CapabilitiesMessage = "Sono un assistente per il catalogo dati del DWH. Posso cercare asset come schemi, " +
		"tabelle e colonne e spiegarti cosa contengono, indicandoti le fonti usate. Posso anche inoltrare " +
		"una segnalazione se trovi un problema nei dati.\nCome posso aiutarti?"

	capabilitiesSystemPrompt = "Sei un assistente virtuale per il catalogo dati aziendale. Rispondi sempre in italiano. " +
		"Descrivi in modo conciso cosa sai fare: cercare informazioni su schemi, tabelle e colonne del vecchio e del " +
		"nuovo DWH citando le fonti, e raccogliere segnalazioni di problemi sui dati da inoltrare al supporto. " +
		"Concludi chiedendo all'utente come puoi aiutarlo."
)

const condensePromptTemplate = `Given a conversation (between Human and Assistant) and a follow up message from Human, rewrite the message to be a standalone question that captures all relevant context from the conversation.
Keep every asset name (schemas, tables, columns) exactly as written.
Answer with the standalone question only.

<Chat History>
%s

<Follow Up Message>
%s

<Standalone question>
`

const singleSelectPromptTemplate = `Some choices are given below. It is provided in a numbered list (1 to %d), where each item in the list corresponds to a summary.
---------------------
%s
---------------------
Using only the choices above and not prior knowledge, return the choice that is most relevant to the question: '%s'
Select only one choice.
Answer with a JSON object in this exact format: {"selections": [{"choice": <number>, "reason": "<short reason>"}]}
`

const choiceSelectPromptTemplate = `A list of documents is shown below. Each document has a number next to it along with a summary of the document. A question is also provided.
Respond with the numbers of the documents you should consult to answer the question, in order of relevance, as well as the relevance score. The relevance score is a number from 1-10 based on how relevant you think the document is to the question.
Do not include any documents that are not relevant to the question.
Example format:
Document 1:
<summary of document 1>

Document 2:
<summary of document 2>

...

Document 10:
<summary of document 10>

Question: <question>
Answer:
Doc: 9, Relevance: 7
Doc: 3, Relevance: 4
Doc: 7, Relevance: 3

Let's try this now:

%s
Question: %s
Answer:
`

const textQAPromptTemplate = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
Query: %s
Answer: `

const retrievalToolDescriptionTemplate = "Utile per rispondere a domande su schemi, tabelle o colonne del %s, " +
	"per esempio cosa contiene un asset, quale colonna identifica un'entità o dove si trova un dato."

func buildCondensePrompt(history []domain.ChatMessage, message string) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return fmt.Sprintf(condensePromptTemplate, b.String(), message)
}

func buildSingleSelectPrompt(query string, choices []domain.StrategyDescriptor) string {
	var b strings.Builder
	for i, c := range choices {
		fmt.Fprintf(&b, "(%d) %s: %s\n\n", i+1, c.Name, strings.TrimSpace(c.Description))
	}
	return fmt.Sprintf(singleSelectPromptTemplate, len(choices), strings.TrimRight(b.String(), "\n"), query)
}

func buildChoiceSelectPrompt(query string, batch []domain.Chunk) string {
	var b strings.Builder
	for i, c := range batch {
		fmt.Fprintf(&b, "Document %d:\n%s\n\n", i+1, strings.TrimSpace(c.Text))
	}
	return fmt.Sprintf(choiceSelectPromptTemplate, b.String(), query)
}

func buildTextQAPrompt(query, context string) string {
	return fmt.Sprintf(textQAPromptTemplate, context, query)
}

func renderEvidence(chunk domain.RankedChunk) string {
	var b strings.Builder
	for _, f := range domain.CitationFromChunk(chunk.Chunk).Fields() {
		if f[0] == "Descrizione" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f[0], f[1])
	}
	b.WriteString(strings.TrimSpace(chunk.Text))
	return b.String()
}
