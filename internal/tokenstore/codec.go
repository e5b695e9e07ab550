package tokenstore

import (
	"encoding/json"
	"fmt"

	"github.com/florianilch/directus-client/internal/token"
)

// formatVersion identifies the serialized token map layout.
const formatVersion = 1

// document is the serialized form shared by the file and keyring backends.
type document struct {
	Version int                     `json:"version"`
	Tokens  map[string]*token.Token `json:"tokens"`
}

func encodeTokens(tokens map[string]*token.Token) ([]byte, error) {
	if tokens == nil {
		tokens = map[string]*token.Token{}
	}
	return json.MarshalIndent(document{Version: formatVersion, Tokens: tokens}, "", "  ")
}

// decodeTokens never returns a partial map: any bad entry fails the whole document.
func decodeTokens(data []byte) (tokenMap, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Tokens == nil {
		return nil, fmt.Errorf("missing tokens mapping")
	}
	if doc.Version > formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", doc.Version)
	}

	tokens := make(tokenMap, len(doc.Tokens))
	for project, tok := range doc.Tokens {
		if tok == nil {
			return nil, fmt.Errorf("null token for project %q", project)
		}
		tokens[project] = tok
	}
	return tokens, nil
}
