package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/campushq/backend/core"
	"github.com/campushq/backend/core/user"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userCols = `id, name, username, email, student_id, branch, is_active, roles, password_hash, created_at, updated_at, last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) getExec(exec []core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

func scanUser(s rowScanner) (user.User, error) {
	var (
		usr       user.User
		username  null.String
		email     null.String
		studentID null.String
		branch    null.String
		pwdHash   null.Bytes
		roles     pq.StringArray
		lastLogin null.Time
	)
	err := s.Scan(
		&usr.ID, &usr.Name, &username, &email, &studentID, &branch, &usr.IsActive,
		&roles, &pwdHash, &usr.CreatedAt, &usr.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return user.User{}, err
	}
	usr.Username = username.String
	usr.Email = email.String
	usr.StudentID = studentID.String
	usr.Branch = branch.String
	usr.Roles = roles
	usr.PasswordHash = pwdHash.Bytes
	usr.LastLogin = lastLogin.Time
	return usr, nil
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func trapUserNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	q := `SELECT username <> '' AND username = $1, email <> '' AND email = $2 FROM "user" WHERE (username = $1 OR email = $2)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += ` AND NOT (id = ANY($3))`
		args = append(args, pq.Array(ids))
	}
	q += ` LIMIT 1`

	var unameTaken, emailTaken bool
	err := repo.getExec(exec).QueryRowContext(ctx, q, args...).Scan(&unameTaken, &emailTaken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if unameTaken {
		return user.ErrUsernameExists
	}
	if emailTaken {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	q := `INSERT INTO "user" (` + userCols + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.StudentID, usr.Branch, usr.IsActive,
		pq.Array(usr.Roles), usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt, null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	)
	if err != nil {
		if isUniqueViolation(err, "user_username_idx") {
			return user.User{}, user.ErrUsernameExists
		}
		if isUniqueViolation(err, "user_email_idx") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) getUserWhere(ctx context.Context, where string, args []interface{}, exec []core.DBExecutor) (user.User, error) {
	q := `SELECT ` + userCols + ` FROM "user" WHERE ` + where + ` LIMIT 1`
	usr, err := scanUser(repo.getExec(exec).QueryRowContext(ctx, q, args...))
	if err != nil {
		return user.User{}, trapUserNoRowsErr(err, "getting user")
	}
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUserWhere(ctx, `id = $1`, []interface{}{id}, exec)
}

func (repo userRepository) GetUserByUsername(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUserWhere(ctx, `username = $1`, []interface{}{username}, exec)
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUserWhere(ctx, `username = $1 OR email = $1`, []interface{}{username}, exec)
}

func (repo userRepository) GetStudent(ctx context.Context, identifier string, exec ...core.DBExecutor) (user.User, error) {
	where := `$1 = ANY(ARRAY[id, lower(student_id), lower(username), lower(email)]) AND $2 = ANY(roles) AND is_active`
	return repo.getUserWhere(ctx, where, []interface{}{identifier, user.RoleStudent}, exec)
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	q := `SELECT ` + userCols + ` FROM "user" WHERE TRUE`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		q += ` AND (name ILIKE ` + p + ` OR username ILIKE ` + p + ` OR email ILIKE ` + p + `)`
	}
	if len(filter.Roles) > 0 {
		q += ` AND roles && ` + arg(pq.Array(filter.Roles))
	}
	if filter.IsActive != nil {
		q += ` AND is_active = ` + arg(*filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		q += ` AND created_at >= ` + arg(filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		q += ` AND created_at <= ` + arg(filter.CreatedTo)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := repo.getExec(exec).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	defer func() { _ = rows.Close() }()

	var users []user.User
	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "filtering users")
		}
		users = append(users, usr)
	}
	return users, errors.Wrap(rows.Err(), "filtering users")
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, exec ...core.DBExecutor) (user.User, error) {
	q := `UPDATE "user" SET
			name = COALESCE(NULLIF($2, ''), name),
			username = COALESCE(NULLIF($3, ''), username),
			email = COALESCE(NULLIF($4, ''), email),
			student_id = COALESCE(NULLIF($5, ''), student_id),
			branch = COALESCE(NULLIF($6, ''), branch),
			roles = COALESCE($7, roles),
			password_hash = COALESCE($8, password_hash),
			is_active = COALESCE($9, is_active),
			updated_at = $10
		WHERE id = $1`

	var rolesArg interface{}
	if usr.Roles != nil {
		rolesArg = pq.Array(usr.Roles)
	}
	var pwdArg interface{}
	if len(usr.PasswordHash) > 0 {
		pwdArg = usr.PasswordHash
	}
	var isActiveArg interface{}
	if isActive != nil {
		isActiveArg = *isActive
	}
	updatedAt := usr.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	res, err := repo.getExec(exec).ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.StudentID, usr.Branch,
		rolesArg, pwdArg, isActiveArg, updatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID, exec...)
}

func (repo userRepository) SetLastLogin(ctx context.Context, id string, t time.Time, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, `UPDATE "user" SET last_login = $2 WHERE id = $1`, id, t)
	if err != nil {
		return errors.Wrap(err, "setting last login")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting users")
	}
	_, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	return errors.Wrap(err, "deleting users")
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && string(pqErr.Constraint) == constraint
	}
	return false
}

func itoa(n int) string {
	// positional args never exceed single digits + a few; avoid strconv import noise
	const digits = "0123456789"
	if n < 10 {
		return digits[n : n+1]
	}
	return itoa(n/10) + digits[n%10:n%10+1]
}
