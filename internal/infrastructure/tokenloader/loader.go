package tokenloader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/pkg/utils"
)

// LoadChainTokens reads per-chain token catalog files from dir. A file named
// <identifier>.json holds a JSON array of tokens for that chain; files for
// chains outside the active set are skipped, as are damaged files and invalid
// entries, each with a log line rather than a failed load.
func LoadChainTokens(dir string, chains []entity.ChainDescriptor, loggerInfo, loggerWarn func(msg string, args ...any)) (map[string][]entity.Token, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read token directory %s: %w", dir, err)
	}

	active := make(map[string]struct{}, len(chains))
	for _, d := range chains {
		active[d.Identifier] = struct{}{}
	}

	tokensByChain := make(map[string][]entity.Token)
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(strings.ToLower(file.Name()), ".json") {
			continue
		}

		chain := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		if _, ok := active[chain]; !ok {
			if loggerInfo != nil {
				loggerInfo("Token file found for an inactive chain, skipping.", "file", file.Name(), "chain", chain)
			}
			continue
		}

		path := filepath.Join(dir, file.Name())
		tokens, err := utils.LoadTokensFromJSON(path)
		if err != nil {
			if loggerWarn != nil {
				loggerWarn("Failed to load tokens from file, skipping file.", "path", path, "error", err)
			}
			continue
		}

		valid := make([]entity.Token, 0, len(tokens))
		for _, token := range tokens {
			if !common.IsHexAddress(token.Address) {
				if loggerWarn != nil {
					loggerWarn("Token has an invalid address, skipping token.",
						"file", path, "symbol", token.Symbol, "address", token.Address)
				}
				continue
			}
			if token.Symbol == "" {
				if loggerWarn != nil {
					loggerWarn("Token has no symbol, skipping token.", "file", path, "address", token.Address)
				}
				continue
			}
			valid = append(valid, token)
		}

		if len(valid) > 0 {
			tokensByChain[chain] = append(tokensByChain[chain], valid...)
			if loggerInfo != nil {
				loggerInfo("Loaded token catalog for chain", "chain", chain, "file", file.Name(), "count", len(valid))
			}
		}
	}

	return tokensByChain, nil
}
