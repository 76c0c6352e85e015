package mnemon

import "strings"

// SplitPassages breaks text into passages of at most chunkSize characters,
// preferring sentence boundaries so passages stay coherent for embedding.
// Oversized sentences are hard-split.
func SplitPassages(text string, chunkSize int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkSize <= 0 || len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	for _, sent := range splitSentences(text) {
		if cur.Len() > 0 && cur.Len()+1+len(sent) > chunkSize {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if len(sent) > chunkSize {
			for len(sent) > chunkSize {
				chunks = append(chunks, sent[:chunkSize])
				sent = sent[chunkSize:]
			}
			if sent == "" {
				continue
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sent)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(cur.String()))
	}
	return chunks
}

func splitSentences(text string) []string {
	var sents []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			end := i + 1
			for end < len(text) && (text[end] == ' ' || text[end] == '\n') {
				end++
			}
			s := strings.TrimSpace(text[start:end])
			if s != "" {
				sents = append(sents, s)
			}
			i = end - 1
			start = end
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sents = append(sents, s)
	}
	return sents
}
