// gmail-auth-helper runs the one-time consent flow for the assistant's
// mailbox and prints the refresh token to put in .env.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/oauth2"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/gmail"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: gmail-auth-helper <credentials.json>")
	}

	credentialsData, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read credentials file: %v", err)
	}

	credentials, err := gmail.ParseCredentials(credentialsData)
	if err != nil {
		log.Fatalf("Failed to parse credentials: %v", err)
	}
	config := gmail.OAuthConfig(credentials)

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("Gmail OAuth2 Authorization Helper\n")
	fmt.Printf("=================================\n")
	fmt.Printf("Scopes: %v\n\n", config.Scopes)
	fmt.Printf("1. Open this URL in your browser:\n")
	fmt.Printf("   %s\n\n", authURL)
	fmt.Printf("2. Authorize the application\n")
	fmt.Printf("3. Copy the authorization code and enter it below\n\n")
	fmt.Printf("Authorization code: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		log.Fatalf("Failed to read authorization code: %v", err)
	}

	token, err := config.Exchange(context.Background(), authCode)
	if err != nil {
		log.Fatalf("Failed to exchange code for token: %v", err)
	}

	fmt.Printf("\nAdd these to your .env file:\n\n")
	fmt.Printf("GMAIL_CREDENTIALS_JSON='%s'\n", string(credentialsData))
	if token.RefreshToken != "" {
		fmt.Printf("GMAIL_REFRESH_TOKEN='%s'\n", token.RefreshToken)
	} else {
		fmt.Printf("# no refresh token returned; revoke the app's access and run again\n")
	}
	fmt.Printf("\nExpires: %v\n", token.Expiry)
}
