package extractor

import "strings"

// hostAliases maps legacy embed hosts to the domain that still serves them.
var hostAliases = [][2]string{
	{"vidmoly.to", "vidmoly.net"},
}

// CorrectEmbedURL rewrites known legacy host aliases in embedURL. Only the
// first occurrence of each alias is replaced.
func CorrectEmbedURL(embedURL string) string {
	for _, alias := range hostAliases {
		embedURL = strings.Replace(embedURL, alias[0], alias[1], 1)
	}
	return embedURL
}
