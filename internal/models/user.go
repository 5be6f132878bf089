package models

import (
	"context"
	"net/mail"
	"strings"
	"time"

	apperrors "AlertDesk/pkg/errors"
	"AlertDesk/pkg/util"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	SigUserCreate = "user.create"
	SigUserLogin  = "user.login"
)

const minPasswordLength = 8

type User struct {
	ID             uint          `json:"id" gorm:"primaryKey"`
	Email          string        `json:"email" gorm:"size:128;uniqueIndex;not null"`
	Password       string        `json:"-" gorm:"size:128"`
	Name           string        `json:"name" gorm:"size:64"`
	Surname        string        `json:"surname" gorm:"size:64"`
	Role           string        `json:"role" gorm:"size:3;not null"`
	OrganizationID uint          `json:"organization" gorm:"index"`
	Organization   *Organization `json:"-"`
	LastLogin      *time.Time    `json:"last_login,omitempty"`
	CreatedAt      time.Time     `json:"-" gorm:"autoCreateTime"`
	UpdatedAt      time.Time     `json:"-" gorm:"autoUpdateTime"`
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, OrganizationID: u.OrganizationID, Role: u.Role}
}

// RegisterRootRequest 注册组织管理员
type RegisterRootRequest struct {
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required"`
	Password2        string `json:"password2" binding:"required"`
	Name             string `json:"name"`
	Surname          string `json:"surname"`
	OrganizationName string `json:"organization_name" binding:"required"`
}

// RegisterOperatorRequest 管理员创建操作员
type RegisterOperatorRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Password2 string `json:"password2" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Surname   string `json:"surname" binding:"required"`
}

// UpdateUserRequest is a partial update; nil fields are left untouched.
type UpdateUserRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Surname  *string `json:"surname"`
	Password *string `json:"password"`
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

func CheckPassword(user *User, password string) bool {
	if user == nil || user.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}

func validatePassword(password, confirm string) error {
	if password != confirm {
		return apperrors.WithKind(apperrors.KindValidation, "passwords do not match").WithContext("field", "password")
	}
	if len(password) < minPasswordLength {
		return apperrors.WithKindf(apperrors.KindValidation, "password must have at least %d characters", minPasswordLength).WithContext("field", "password")
	}
	if util.IsDigits(password) {
		return apperrors.WithKind(apperrors.KindValidation, "password cannot be entirely numeric").WithContext("field", "password")
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperrors.WithKind(apperrors.KindValidation, "invalid email address").WithContext("field", "email")
	}
	return email, nil
}

func ensureEmailFree(db *gorm.DB, email string, exceptID uint) error {
	var count int64
	q := db.Model(&User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return apperrors.Wrap(err, "check email")
	}
	if count > 0 {
		return emailTaken()
	}
	return nil
}

func emailTaken() error {
	return apperrors.WithKind(apperrors.KindValidation, "email already in use").WithContext("field", "email")
}

// CreateRootUser registers an administrator together with a new organization.
func CreateRootUser(ctx context.Context, db *gorm.DB, req RegisterRootRequest) (*User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password, req.Password2); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.OrganizationName) == "" || len(req.OrganizationName) > 64 {
		return nil, apperrors.WithKind(apperrors.KindValidation, "invalid organization name").WithContext("field", "organization_name")
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:    email,
		Password: hash,
		Name:     req.Name,
		Surname:  req.Surname,
		Role:     RoleAdmin,
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureEmailFree(tx, email, 0); err != nil {
			return err
		}
		org := &Organization{Name: strings.TrimSpace(req.OrganizationName), Enabled: true}
		if err := tx.Create(org).Error; err != nil {
			return apperrors.Wrap(err, "create organization")
		}
		user.OrganizationID = org.ID
		if err := tx.Create(user).Error; err != nil {
			return uniqueViolation(err, emailTaken(), "create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	util.Sig().Emit(SigUserCreate, user)
	return user, nil
}

// CreateOperator registers an operator inside the caller's organization.
// Only administrators may do so.
func CreateOperator(ctx context.Context, db *gorm.DB, caller Identity, req RegisterOperatorRequest) (*User, error) {
	if !caller.IsAdmin() {
		return nil, apperrors.WithKind(apperrors.KindForbidden, "only an administrator can create an operator")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password, req.Password2); err != nil {
		return nil, err
	}
	if err := ensureEmailFree(db.WithContext(ctx), email, 0); err != nil {
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Email:          email,
		Password:       hash,
		Name:           req.Name,
		Surname:        req.Surname,
		Role:           RoleOperator,
		OrganizationID: caller.OrganizationID,
	}
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, uniqueViolation(err, emailTaken(), "create user")
	}
	util.Sig().Emit(SigUserCreate, user)
	return user, nil
}

// Authenticate checks email and password and stamps the login time.
func Authenticate(ctx context.Context, db *gorm.DB, email, password string) (*User, error) {
	user, err := GetUserByEmail(ctx, db, email)
	if err != nil || !CheckPassword(user, password) {
		return nil, apperrors.WithKind(apperrors.KindUnauthorized, "no active account found with the given credentials")
	}
	now := time.Now()
	user.LastLogin = &now
	if err := db.WithContext(ctx).Model(user).UpdateColumn("last_login", now).Error; err != nil {
		return nil, apperrors.Wrap(err, "update last login")
	}
	util.Sig().Emit(SigUserLogin, user)
	return user, nil
}

func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error) {
	var user User
	err := db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func GetUserByID(ctx context.Context, db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// ListUsers 列出调用者所在组织的用户
func ListUsers(ctx context.Context, db *gorm.DB, caller Identity) ([]User, error) {
	var users []User
	err := db.WithContext(ctx).
		Where("organization_id = ?", caller.OrganizationID).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "list users")
	}
	return users, nil
}

// UpdateUser applies a partial update. Users of another organization are
// never visible; operators may only modify themselves.
func UpdateUser(ctx context.Context, db *gorm.DB, caller Identity, id uint, req UpdateUserRequest) (*User, error) {
	user, err := GetUserByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(user.OrganizationID) {
		return nil, apperrors.WithKind(apperrors.KindForbidden, "only users of your organization can be modified")
	}
	if !caller.IsAdmin() && caller.UserID != user.ID {
		return nil, apperrors.WithKind(apperrors.KindForbidden, "only your own user can be modified")
	}

	vals := map[string]any{}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		if err := ensureEmailFree(db.WithContext(ctx), email, user.ID); err != nil {
			return nil, err
		}
		vals["email"] = email
	}
	if req.Name != nil {
		vals["name"] = *req.Name
	}
	if req.Surname != nil {
		vals["surname"] = *req.Surname
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password, *req.Password); err != nil {
			return nil, err
		}
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		vals["password"] = hash
	}
	if len(vals) == 0 {
		return user, nil
	}
	if err := db.WithContext(ctx).Model(user).Updates(vals).Error; err != nil {
		return nil, uniqueViolation(err, emailTaken(), "update user")
	}
	return GetUserByID(ctx, db, id)
}
