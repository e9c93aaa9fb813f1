// Package management implements the Management Interface (spec §4.8):
// operator self-provisioning of a short-lived elevated session via an
// external messaging platform directory lookup and magic-link delivery,
// plus the daily job that purges the transient users it creates.
//
// Modeled on the teacher's internal/auth/invitation_service.go (opaque
// token generation, single-purpose transient grant) and
// internal/api/invite_handlers.go's HTTP shape; the external directory
// lookup and link delivery are represented as narrow interfaces so the
// concrete Slack/messaging integration (out of scope per spec.md §1) can
// be swapped in without touching this package.
package management

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lightbasenl/identity-core/internal/apperr"
	"github.com/lightbasenl/identity-core/internal/jobs"
	"github.com/lightbasenl/identity-core/internal/session"
	"github.com/lightbasenl/identity-core/internal/storage"
	"github.com/lightbasenl/identity-core/internal/storage/db"
)

// DirectoryEntry is what a successful directory lookup returns about the
// operator identifying themselves.
type DirectoryEntry struct {
	ExternalID  string
	DisplayName string
}

// DirectoryLookup checks one external-platform user id against a
// workspace directory (spec §4.8 "checked against a workspace
// directory"). The concrete Slack/messaging-platform client lives
// outside this core.
type DirectoryLookup interface {
	Lookup(ctx context.Context, externalID string) (DirectoryEntry, bool, error)
}

// LinkSender delivers the magic link to the operator over the external
// messaging platform.
type LinkSender interface {
	Send(ctx context.Context, entry DirectoryEntry, link string) error
}

// ThreadPurger removes the chat thread the magic link was delivered in,
// called once its backing session has been swept (spec §4.8 "purges the
// chat thread").
type ThreadPurger interface {
	PurgeThread(ctx context.Context, externalID string) error
}

// DevLinkSender prints the link instead of delivering it, matching
// notify.DevMailer's development pattern; it also acts as a no-op
// ThreadPurger since there is no real thread to purge in development.
type DevLinkSender struct {
	Logger *slog.Logger
}

func (s *DevLinkSender) Send(ctx context.Context, entry DirectoryEntry, link string) error {
	s.Logger.Info("🔗 MAGIC LINK ISSUED",
		"externalId", entry.ExternalID,
		"displayName", entry.DisplayName,
		"link", link,
	)
	return nil
}

func (s *DevLinkSender) PurgeThread(ctx context.Context, externalID string) error {
	s.Logger.Info("🧹 CHAT THREAD PURGED (dev no-op)", "externalId", externalID)
	return nil
}

// Config holds deployment knobs: the base URL the magic link is built
// against and how long an elevated session may live before the daily
// sweep reclaims it.
type Config struct {
	AppURL     string
	PurgeAfter time.Duration // default 24h per spec §4.8's "daily job"
}

func DefaultConfig(appURL string) Config {
	return Config{AppURL: appURL, PurgeAfter: 24 * time.Hour}
}

// Service implements the self-provisioning flow and its daily purge.
type Service struct {
	Pool     *pgxpool.Pool
	Queries  *db.Queries
	Sessions *session.Store
	Jobs     *jobs.Bus
	Lookup   DirectoryLookup
	Sender   LinkSender
	Threads  ThreadPurger
	Config   Config
}

func NewService(pool *pgxpool.Pool, queries *db.Queries, sessions *session.Store, bus *jobs.Bus, lookup DirectoryLookup, sender LinkSender, threads ThreadPurger, cfg Config) *Service {
	return &Service{
		Pool:     pool,
		Queries:  queries,
		Sessions: sessions,
		Jobs:     bus,
		Lookup:   lookup,
		Sender:   sender,
		Threads:  threads,
		Config:   cfg,
	}
}

// RequestMagicLink looks externalID up against the workspace directory;
// on a hit it creates a transient user, issues a full elevated session
// for it, and delivers a link carrying that session's access token. In
// development, LinkSender.Send returning nil after logging lets the
// caller surface the same link inline to the request (spec §4.8 "in
// development environments the link is returned inline").
func (s *Service) RequestMagicLink(ctx context.Context, externalID string) (string, error) {
	entry, ok, err := s.Lookup.Lookup(ctx, externalID)
	if err != nil {
		return "", apperr.Server("management.requestMagicLink.lookup", err)
	}
	if !ok {
		return "", apperr.Validation("management.requestMagicLink.unknownExternalId", map[string]any{"externalId": externalID})
	}

	var link string
	err = storage.WithoutRLS(ctx, s.Pool, func(tx pgx.Tx) error {
		q := s.Queries.WithTx(tx)
		sessions := s.Sessions.WithTx(tx)
		jobsBus := s.Jobs.WithTx(tx)

		u, err := q.CreateUser(ctx, pgtype.Text{String: entry.DisplayName, Valid: entry.DisplayName != ""})
		if err != nil {
			return apperr.Server("management.requestMagicLink.createUser", err)
		}

		if _, err := q.CreateManagementUser(ctx, u.ID, entry.ExternalID); err != nil {
			return apperr.Server("management.requestMagicLink.createManagementUser", err)
		}

		pair, err := sessions.Create(ctx, uuid.UUID(u.ID.Bytes), session.Data{
			LoginType: session.LoginTypeManagement,
			Type:      session.TypeUser,
		}, nil)
		if err != nil {
			return apperr.NormalizeSessionError(err)
		}

		link = fmt.Sprintf("%s/_lightbase/management/session?token=%s", s.Config.AppURL, pair.AccessToken)

		return jobsBus.Enqueue(ctx, "management.magicLinkRequested", map[string]any{
			"externalId": entry.ExternalID,
		})
	})
	if err != nil {
		return "", err
	}

	if err := s.Sender.Send(ctx, entry, link); err != nil {
		return "", apperr.Server("management.requestMagicLink.deliver", err)
	}

	return link, nil
}

// PurgeExpired deletes every management user (and its backing transient
// user, cascading to its sessions) older than Config.PurgeAfter, and asks
// ThreadPurger to clean up each one's delivered-link thread (spec §4.8
// daily job). Thread purges run after the transaction commits, outside
// it, since the external platform call isn't part of the database state
// change.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	hours := int(s.Config.PurgeAfter / time.Hour)
	if hours < 1 {
		hours = 1
	}

	var purged []db.PurgedManagementUser
	err := storage.WithoutRLS(ctx, s.Pool, func(tx pgx.Tx) error {
		q := s.Queries.WithTx(tx)
		rows, err := q.SweepExpiredManagementUsers(ctx, hours)
		if err != nil {
			return apperr.Server("management.purgeExpired.sweep", err)
		}
		for _, row := range rows {
			if err := q.DeleteUserHard(ctx, row.ID); err != nil {
				return apperr.Server("management.purgeExpired.deleteUser", err)
			}
		}
		purged = rows
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, row := range purged {
		if err := s.Threads.PurgeThread(ctx, row.ExternalID); err != nil {
			return len(purged), apperr.Server("management.purgeExpired.purgeThread", err)
		}
	}

	return len(purged), nil
}
