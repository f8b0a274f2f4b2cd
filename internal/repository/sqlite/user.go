package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/model"
)

const userColumns = `id, username, COALESCE(email, ''), password_hash, COALESCE(github_id, 0),
	profile_picture, bio, location, website, is_admin, created_at, updated_at`

// CreateUser inserts a new account. It fills in ID and timestamps.
// A taken username or email yields apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := db.now().UTC().Truncate(time.Millisecond)
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, github_id, profile_picture,
			bio, location, website, is_admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		nullIfEmpty(user.Email),
		user.PasswordHash,
		nullIfZero(user.GitHubID),
		user.ProfilePicture,
		user.Bio,
		user.Location,
		user.Website,
		boolInt(user.IsAdmin),
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("User already exists")
		}
		return fmt.Errorf("sqlite: creating user %q: %w", user.Username, err)
	}

	user.Followers = []string{}
	user.Following = []string{}
	return nil
}

// GetUserByID retrieves a user by internal ID, with both follow sets loaded.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id = ?", id)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, "username = ?", username)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email = ?", email)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("sqlite: getting user (%s): %w", where, err)
	}

	if u.Following, err = db.followIDs(ctx,
		`SELECT followee_id FROM user_follows WHERE follower_id = ? ORDER BY rowid`, u.ID); err != nil {
		return nil, err
	}
	if u.Followers, err = db.followIDs(ctx,
		`SELECT follower_id FROM user_follows WHERE followee_id = ? ORDER BY rowid`, u.ID); err != nil {
		return nil, err
	}

	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		isAdmin   int
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.GitHubID,
		&u.ProfilePicture,
		&u.Bio,
		&u.Location,
		&u.Website,
		&isAdmin,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func (db *DB) followIDs(ctx context.Context, query, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing follow edges of %s: %w", userID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning follow edge: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertGitHubUser creates or refreshes the account linked to user.GitHubID.
//
// Existing accounts keep their ID, username and profile edits; only the
// email is refreshed. A new account takes the GitHub login as username,
// suffixed with the GitHub id if that name is already taken.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID != "" {
		if user.Email != "" {
			_, err = db.conn.ExecContext(ctx,
				`UPDATE users SET email = ?, updated_at = ? WHERE id = ?`,
				user.Email, toMillis(db.now()), existingID,
			)
			if err != nil && !isUniqueViolation(err) {
				return fmt.Errorf("sqlite: updating user %s: %w", existingID, err)
			}
		}
		stored, err := db.GetUserByID(ctx, existingID)
		if err != nil {
			return err
		}
		*user = *stored
		return nil
	}

	err = db.CreateUser(ctx, user)
	if errors.Is(err, apperror.ErrConflict) {
		user.Username = fmt.Sprintf("%s-%d", user.Username, user.GitHubID)
		user.Email = "" // the email belongs to a password account
		err = db.CreateUser(ctx, user)
	}
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", user.GitHubID, err)
	}
	return nil
}

// UpdateProfile applies the non-nil fields of update.
func (db *DB) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	sets := []string{}
	args := []any{}
	if update.Bio != nil {
		sets = append(sets, "bio = ?")
		args = append(args, *update.Bio)
	}
	if update.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *update.Location)
	}
	if update.Website != nil {
		sets = append(sets, "website = ?")
		args = append(args, *update.Website)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(db.now()), id)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if err := db.execOne(ctx, "User", query, args...); err != nil {
		return nil, fmt.Errorf("sqlite: updating profile %s: %w", id, err)
	}
	return db.GetUserByID(ctx, id)
}

func (db *DB) SetProfilePicture(ctx context.Context, id, url string) (*model.User, error) {
	err := db.execOne(ctx, "User",
		`UPDATE users SET profile_picture = ?, updated_at = ? WHERE id = ?`,
		url, toMillis(db.now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: setting profile picture %s: %w", id, err)
	}
	return db.GetUserByID(ctx, id)
}

func (db *DB) SetAdmin(ctx context.Context, id string, admin bool) error {
	err := db.execOne(ctx, "User",
		`UPDATE users SET is_admin = ?, updated_at = ? WHERE id = ?`,
		boolInt(admin), toMillis(db.now()), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting admin flag %s: %w", id, err)
	}
	return nil
}

// Follow records followerID → followeeID. The single edge row is both
// followee's "followers" entry and follower's "following" entry.
func (db *DB) Follow(ctx context.Context, followerID, followeeID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`,
		followerID, followeeID, toMillis(db.now()),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("User")
		}
		return fmt.Errorf("sqlite: following %s → %s: %w", followerID, followeeID, err)
	}
	return nil
}

func (db *DB) Unfollow(ctx context.Context, followerID, followeeID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unfollowing %s → %s: %w", followerID, followeeID, err)
	}
	return nil
}

// SearchUsers matches query as a case-insensitive substring of username or bio.
func (db *DB) SearchUsers(ctx context.Context, query string, limit int) ([]model.UserSummary, error) {
	pattern := escapeLike(query)
	return db.listSummaries(ctx,
		`SELECT id, username, profile_picture, bio FROM users
		 WHERE username LIKE ? ESCAPE '\' OR bio LIKE ? ESCAPE '\'
		 ORDER BY username LIMIT ?`,
		pattern, pattern, limit,
	)
}

func (db *DB) ListUsersByIDs(ctx context.Context, ids []string) ([]model.UserSummary, error) {
	if len(ids) == 0 {
		return []model.UserSummary{}, nil
	}
	return db.listSummaries(ctx,
		`SELECT id, username, profile_picture, bio FROM users
		 WHERE id IN (`+placeholders(len(ids))+`) ORDER BY username`,
		stringArgs(ids)...,
	)
}

func (db *DB) SuggestUsers(ctx context.Context, userID string, limit int) ([]model.UserSummary, error) {
	return db.listSummaries(ctx,
		`SELECT id, username, profile_picture, bio FROM users
		 WHERE id != ?
		   AND id NOT IN (SELECT followee_id FROM user_follows WHERE follower_id = ?)
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, userID, limit,
	)
}

func (db *DB) listSummaries(ctx context.Context, query string, args ...any) ([]model.UserSummary, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.UserSummary{}
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Username, &u.ProfilePicture, &u.Bio); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// execOne runs a single-row UPDATE/DELETE and reports NotFound(resource)
// when no row matched.
func (db *DB) execOne(ctx context.Context, resource, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound(resource)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
