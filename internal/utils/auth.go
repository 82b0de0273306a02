package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// LoadTokenSource reads a stored oauth2 token (JSON) and returns a static
// source for it. Expired tokens without a refresh token are rejected here
// rather than failing on the first fragment.
func LoadTokenSource(tokenFile string) (oauth2.TokenSource, error) {
	token, err := TokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file: %v", err)
	}
	if !token.Valid() && token.RefreshToken == "" {
		return nil, fmt.Errorf("token in %s is expired and cannot be refreshed", tokenFile)
	}
	return oauth2.StaticTokenSource(token), nil
}

func TokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

func SaveToken(file string, token *oauth2.Token) error {
	dir := filepath.Dir(file)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to create token directory: %v", err)
		}
	}
	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %v", err)
	}
	defer f.Close()
	err = json.NewEncoder(f).Encode(token)
	if err != nil {
		return fmt.Errorf("unable to encode token: %v", err)
	}
	return nil
}
