package utils

import (
	"encoding/json"
	"os"

	"portfolio_tracker/internal/domain/entity"
)

// LoadTokensFromJSON reads a JSON file containing a token list.
func LoadTokensFromJSON(filePath string) ([]entity.Token, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var tokens []entity.Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}
