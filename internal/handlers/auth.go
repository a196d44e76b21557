package handlers

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/atharvakonge/finance/internal/repository"
)

var errInvalidCredentials = errors.New("invalid username and/or password")

type credentialsForm struct {
	Username string `form:"username"`
	Password string `form:"password"`
}

// Validate reports the first missing field.
func (f *credentialsForm) Validate() error {
	if err := validation.Validate(f.Username, validation.Required.Error("must provide username")); err != nil {
		return err
	}
	return validation.Validate(f.Password, validation.Required.Error("must provide password"))
}

// dummy is compared against when the username is unknown so both login
// failures cost one bcrypt comparison.
func (h *Handler) dummy() []byte {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), h.bcryptCost)
	})
	return h.dummyHash
}

// RegisterForm handles GET /register
func (h *Handler) RegisterForm(c *gin.Context) {
	h.render(c, http.StatusOK, "register.html", "Register", nil)
}

// Register handles POST /register
func (h *Handler) Register(c *gin.Context) {
	var form credentialsForm
	_ = c.ShouldBind(&form)

	if err := form.Validate(); err != nil {
		h.apology(c, http.StatusForbidden, err.Error())
		return
	}

	ctx := c.Request.Context()
	_, err := h.users.FindUserByUsername(ctx, form.Username)
	switch {
	case err == nil:
		h.apology(c, http.StatusForbidden, repository.ErrUsernameTaken.Error())
		return
	case !errors.Is(err, repository.ErrUserNotFound):
		h.internalError(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), h.bcryptCost)
	if err != nil {
		h.internalError(c, err)
		return
	}

	user, err := h.users.CreateUser(ctx, form.Username, string(hash), h.startingCash)
	if errors.Is(err, repository.ErrUsernameTaken) {
		h.apology(c, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	if err = h.sessions.Clear(c.Writer, c.Request); err != nil {
		h.log.Warn("clear session", zap.Error(err))
	}
	if err = h.sessions.Start(c.Writer, c.Request, user.ID); err != nil {
		h.internalError(c, err)
		return
	}

	h.log.Info("user registered", zap.Int64("user_id", user.ID))
	c.Redirect(http.StatusSeeOther, "/")
}

// Login handles GET and POST /login. Any existing session is dropped first.
func (h *Handler) Login(c *gin.Context) {
	if err := h.sessions.Clear(c.Writer, c.Request); err != nil {
		h.log.Warn("clear session", zap.Error(err))
	}

	if c.Request.Method != http.MethodPost {
		h.render(c, http.StatusOK, "login.html", "Log In", nil)
		return
	}

	if c.PostForm("signup") != "" {
		c.Redirect(http.StatusSeeOther, "/register")
		return
	}

	var form credentialsForm
	_ = c.ShouldBind(&form)

	if err := form.Validate(); err != nil {
		h.apology(c, http.StatusForbidden, err.Error())
		return
	}

	user, err := h.users.FindUserByUsername(c.Request.Context(), form.Username)
	if errors.Is(err, repository.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(h.dummy(), []byte(form.Password))
		h.apology(c, http.StatusForbidden, errInvalidCredentials.Error())
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(form.Password)); err != nil {
		h.apology(c, http.StatusForbidden, errInvalidCredentials.Error())
		return
	}

	if err = h.sessions.Start(c.Writer, c.Request, user.ID); err != nil {
		h.internalError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Logout handles GET /logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Clear(c.Writer, c.Request); err != nil {
		h.log.Warn("clear session", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/login")
}
