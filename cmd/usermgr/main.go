package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/go-while/checkweb/internal/auth"
	"github.com/go-while/checkweb/internal/config"
	"github.com/go-while/checkweb/internal/database"
	"github.com/go-while/checkweb/internal/models"
)

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion
	log.Printf("checkweb User Manager (version: %s)", config.AppVersion)
	var (
		configFile  = flag.String("config", "", "Path to config file (only database.main_db is used)")
		createUser  = flag.Bool("create", false, "Create a new user")
		listUsers   = flag.Bool("list", false, "List all users")
		deleteUser  = flag.Bool("delete", false, "Delete a user")
		updateUser  = flag.Bool("update", false, "Update a user's password, or roles when -roles/-perms is given")
		username    = flag.String("username", "", "Username for user operations")
		email       = flag.String("email", "", "Email for user creation")
		display     = flag.String("display", "", "Display name for user creation")
		roles       = flag.String("roles", "", "Comma separated roles, e.g. Admin,Editor")
		permissions = flag.String("perms", "", "Comma separated permissions")
	)
	flag.Parse()

	if !*createUser && !*listUsers && !*deleteUser && !*updateUser {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -create -username john -email john@example.com -display \"John Doe\" -roles Admin\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -list\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -update -username john\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -update -username john -roles Admin,Editor\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -delete -username john\n", os.Args[0])
		os.Exit(1)
	}

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("%v", err)
	}
	mainConfig, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	db, err := database.OpenDatabase(database.DefaultDBConfig(mainConfig.Database.MainDB), zap.NewNop())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Shutdown()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("Failed to apply database migrations: %v", err)
	}

	switch {
	case *createUser:
		if *username == "" {
			log.Fatal("Username is required for user creation")
		}
		if *email == "" {
			log.Fatal("Email is required for user creation")
		}
		user := &models.User{
			Username:    *username,
			Email:       *email,
			DisplayName: *display,
			Roles:       models.SplitList(*roles),
			Permissions: models.SplitList(*permissions),
		}
		if err := createNewUser(ctx, db, user); err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}

	case *listUsers:
		if err := listAllUsers(ctx, db); err != nil {
			log.Fatalf("Failed to list users: %v", err)
		}

	case *deleteUser:
		if *username == "" {
			log.Fatal("Username is required for user deletion")
		}
		if err := deleteExistingUser(ctx, db, *username); err != nil {
			log.Fatalf("Failed to delete user: %v", err)
		}

	case *updateUser:
		if *username == "" {
			log.Fatal("Username is required for user update")
		}
		if *roles != "" || *permissions != "" {
			err = updateUserRoles(ctx, db, *username, models.SplitList(*roles), models.SplitList(*permissions))
		} else {
			err = updateUserPassword(ctx, db, *username)
		}
		if err != nil {
			log.Fatalf("Failed to update user: %v", err)
		}
	}
}

func createNewUser(ctx context.Context, db *database.Database, user *models.User) error {
	if err := auth.ValidateUsername(user.Username); err != nil {
		return err
	}
	if _, err := db.GetUserByUsername(ctx, user.Username); err == nil {
		return fmt.Errorf("user '%s' already exists", user.Username)
	} else if !errors.Is(err, database.ErrUserNotFound) {
		return err
	}
	if _, err := db.GetUserByEmail(ctx, user.Email); err == nil {
		return fmt.Errorf("email '%s' already exists", user.Email)
	} else if !errors.Is(err, database.ErrUserNotFound) {
		return err
	}

	password, err := readNewPassword("Enter password: ")
	if err != nil {
		return err
	}
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hashedPassword

	// Set display name to username if not provided
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}

	if err := db.InsertUser(ctx, user); err != nil {
		return err
	}
	fmt.Printf("✅ User '%s' created successfully (ID: %d)\n", user.Username, user.ID)
	if len(user.Roles) > 0 {
		fmt.Printf("✅ Roles: %s\n", strings.Join(user.Roles, ", "))
	}
	return nil
}

func listAllUsers(ctx context.Context, db *database.Database) error {
	users, err := db.GetAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to get users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users found")
		return nil
	}

	fmt.Printf("Found %d users:\n\n", len(users))
	fmt.Printf("%-4s %-20s %-30s %-20s %-20s %s\n", "ID", "Username", "Email", "Display Name", "Roles", "Created")
	fmt.Printf("%-4s %-20s %-30s %-20s %-20s %s\n", "----", "--------", "-----", "------------", "-----", "-------")

	for _, user := range users {
		fmt.Printf("%-4d %-20s %-30s %-20s %-20s %s\n",
			user.ID,
			truncate(user.Username, 20),
			truncate(user.Email, 30),
			truncate(user.DisplayName, 20),
			truncate(strings.Join(user.Roles, ","), 20),
			user.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	return nil
}

func deleteExistingUser(ctx context.Context, db *database.Database, username string) error {
	user, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user '%s': %w", username, err)
	}

	fmt.Printf("Are you sure you want to delete user '%s' (ID: %d)? [y/N]: ", username, user.ID)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))

	if response != "y" && response != "yes" {
		fmt.Println("User deletion cancelled")
		return nil
	}

	if err := db.DeleteUser(ctx, user.ID); err != nil {
		return err
	}
	fmt.Printf("✅ User '%s' (ID: %d) deleted\n", user.Username, user.ID)
	return nil
}

func updateUserPassword(ctx context.Context, db *database.Database, username string) error {
	user, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user '%s': %w", username, err)
	}

	password, err := readNewPassword(fmt.Sprintf("Enter new password for '%s': ", username))
	if err != nil {
		return err
	}
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := db.UpdateUserPassword(ctx, user.ID, hashedPassword); err != nil {
		return err
	}
	// a new password unlocks the account
	if err := db.ResetLoginAttempts(ctx, user.ID); err != nil {
		return err
	}

	fmt.Printf("✅ Password updated successfully for user '%s'\n", username)
	return nil
}

func updateUserRoles(ctx context.Context, db *database.Database, username string, roles, permissions []string) error {
	user, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user '%s': %w", username, err)
	}
	if err := db.UpdateUserRoles(ctx, user.ID, roles, permissions); err != nil {
		return err
	}
	fmt.Printf("✅ Roles for '%s' set to [%s], permissions [%s]\n",
		username, strings.Join(roles, ", "), strings.Join(permissions, ", "))
	return nil
}

// readNewPassword prompts twice without echo
func readNewPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmPassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	fmt.Println()

	if string(password) != string(confirmPassword) {
		return "", fmt.Errorf("passwords do not match")
	}
	if err := auth.ValidatePassword(string(password)); err != nil {
		return "", err
	}
	return string(password), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
