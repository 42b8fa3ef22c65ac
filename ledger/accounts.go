package ledger

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadAccountsFile parses an accounts file: a JSON array of accounts.
func LoadAccountsFile(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, a := range accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("parse %s: account %d has no id", path, i)
		}
	}
	return accounts, nil
}
