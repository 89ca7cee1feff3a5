package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"roomchat/backend/internal/config"
	"roomchat/backend/internal/models"
	"roomchat/backend/internal/moderation"
	"roomchat/backend/internal/storage"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const usage = `Usage: admin <command> [args]

Commands:
  promote <user_id>             grant the admin role
  demote <user_id>              revoke the admin role
  ban <user_id> [hours]         ban; without hours the ban level escalates
  unban <user_id>               lift a ban
  remove <user_id>              delete the account
  users                         list accounts
  messages [limit]              print the message log`

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()
	db, err := storage.OpenDatabase(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	// Redis carries the forced logouts to running servers; without it bans
	// only apply on the next connection attempt.
	rdb, err := storage.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("failed to connect Redis: %v", err)
	}
	s := storage.NewStorageService(db, rdb)
	defer s.Close()

	if err := run(ctx, moderation.NewService(s), s, os.Args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, mod *moderation.Service, s storage.Storage, args []string) error {
	command := args[0]

	switch command {
	case "promote", "demote", "unban", "remove":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin %s <user_id>", command)
		}
		return applyToUser(ctx, mod, command, args[1])

	case "ban":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: admin ban <user_id> [hours]")
		}
		var duration time.Duration
		if len(args) == 3 {
			hours, err := strconv.Atoi(args[2])
			if err != nil || hours <= 0 {
				return fmt.Errorf("invalid duration %q, provide a positive number of hours", args[2])
			}
			duration = time.Duration(hours) * time.Hour
		}
		user, err := mod.Ban(ctx, args[1], duration)
		if err != nil {
			return err
		}
		fmt.Printf("User %s has been banned until %s (level %d).\n",
			user.ID, time.Unix(user.BlockEndTime, 0).Format(time.RFC3339), user.BlockLevel)

	case "users":
		users, err := s.ListUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			status := "active"
			if u.BlockedAt(time.Now()) {
				status = "banned"
			}
			fmt.Printf("%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Nickname, u.Role, status)
		}

	case "messages":
		scope := models.HistoryScope{}
		if len(args) > 1 {
			limit, err := strconv.Atoi(args[1])
			if err != nil || limit < 0 {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			scope.Limit = limit
		}
		messages, err := s.GetChatHistory(ctx, scope)
		if err != nil {
			return err
		}
		for _, m := range messages {
			fmt.Printf("%d\t%s\t%s: %s\n", m.ID, m.Timestamp.Format(time.RFC3339), m.Sender, m.Text)
		}

	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
	return nil
}

func applyToUser(ctx context.Context, mod *moderation.Service, command, userID string) error {
	var err error
	switch command {
	case "promote":
		_, err = mod.Promote(ctx, userID)
	case "demote":
		_, err = mod.Demote(ctx, userID)
	case "unban":
		_, err = mod.Unban(ctx, userID)
	case "remove":
		err = mod.Remove(ctx, userID)
	}
	if err != nil {
		return err
	}
	fmt.Printf("User %s: %s done.\n", userID, command)
	return nil
}
