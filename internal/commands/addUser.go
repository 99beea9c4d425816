// Package commands holds CLI entrypoints that run instead of the server.
package commands

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/models"
	"github.com/AzuraDev202/Task-Report-ManagementSystem-sub000/internal/storage"
)

// AddUser provisions a user record directly in the store. Identity and token
// issuance live outside this service, so provisioning only needs the record
// the token subject will resolve to.
func AddUser(store *storage.Store, username, displayName string, role models.Role) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if displayName == "" {
		displayName = username
	}
	switch role {
	case models.RoleMember, models.RoleManager, models.RoleSuperAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	user := models.User{
		ID:          uuid.NewString(),
		UserName:    username,
		DisplayName: displayName,
		Role:        role,
	}
	if err := store.UpsertUser(user); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}

	fmt.Printf("\nUser Created Successfully!\n")
	fmt.Printf("ID:       %s\n", user.ID)
	fmt.Printf("Username: %s\n", user.UserName)
	fmt.Printf("Role:     %s\n\n", user.Role)
	fmt.Println("Issue tokens with this ID as the subject claim.")
	return nil
}
