package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atabekov-a/minibank/internal/config"
	"github.com/atabekov-a/minibank/internal/domain/models"
	"github.com/atabekov-a/minibank/internal/lib/jwt"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type APIServer struct {
	config         *config.Config
	logger         *slog.Logger
	dir            models.Directory
	bank           *models.Bank
	creds          *sync.Map
	server         *http.Server
	initialBalance decimal.Decimal
	jwtSecret      []byte
}

// credentials links a username to its user entity and password hash. The
// domain model knows nothing about authentication, so the mapping lives here.
type credentials struct {
	UserID       string
	PasswordHash string
}

func New(config *config.Config, logger *slog.Logger, dir models.Directory, bank *models.Bank, initialBalance decimal.Decimal, jwtSecret []byte) *APIServer {
	return &APIServer{
		config: config,
		logger: logger,
		dir:    dir,
		bank:   bank,
		creds:  &sync.Map{},
		server: &http.Server{
			Addr: config.ApiHost + ":" + strconv.Itoa(config.ApiPort),
		},
		initialBalance: initialBalance,
		jwtSecret:      jwtSecret,
	}
}

func (s *APIServer) Start() error {
	s.logger.Info("Starting server", slog.String("port", strconv.Itoa(s.config.ApiPort)))

	s.configureRouter()

	return s.server.ListenAndServe()
}

func (s *APIServer) MustStart() {
	err := s.Start()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic("Failed to start server: " + err.Error())
	}
}

func (s *APIServer) Stop(ctx context.Context) error {
	defer s.logger.Info("Server successfully stopped")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) configureRouter() {
	router := mux.NewRouter()
	router.HandleFunc("/api/auth", s.authHandler()).Methods("POST")
	router.HandleFunc("/api/info", s.authenticate(s.infoHandler())).Methods("GET")
	router.HandleFunc("/api/send", s.authenticate(s.sendHandler())).Methods("POST")
	router.HandleFunc("/api/accounts", s.authenticate(s.createAccountHandler())).Methods("POST")
	router.HandleFunc("/api/accounts/{id}", s.authenticate(s.accountHandler())).Methods("GET")
	router.HandleFunc("/api/accounts/{id}/history", s.authenticate(s.historyHandler())).Methods("GET")
	s.server.Handler = router
}

type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

// authHandler registers unknown usernames and logs in known ones. A fresh
// registration opens the user's first account with the configured starting
// balance.
func (s *APIServer) authHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AuthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request format", http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Password == "" {
			http.Error(w, "Username and password are required", http.StatusBadRequest)
			return
		}

		cached, ok := s.creds.Load(req.Username)

		if !ok {
			user, err := s.registerNewUser(req.Username, []byte(req.Password))
			if err != nil {
				http.Error(w, "Registration failed", http.StatusInternalServerError)
				return
			}
			s.issueToken(w, user)
			return
		}

		cred, ok := cached.(credentials)
		if !ok {
			http.Error(w, "Invalid credentials format", http.StatusInternalServerError)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)); err != nil {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		user, err := s.dir.User(cred.UserID)
		if err != nil {
			http.Error(w, "User not found", http.StatusInternalServerError)
			return
		}
		s.issueToken(w, user)
	}
}

func (s *APIServer) issueToken(w http.ResponseWriter, user *models.User) {
	token, err := jwt.NewToken(user, string(s.jwtSecret), 24*time.Hour)
	if err != nil {
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	if err := json.NewEncoder(w).Encode(AuthResponse{Token: token}); err != nil {
		return
	}
}

func (s *APIServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenHeader := r.Header.Get("Authorization")
		if tokenHeader == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(tokenHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid token format", http.StatusUnauthorized)
			return
		}

		tokenStr := parts[1]

		claims, err := jwt.ParseToken(tokenStr, string(s.jwtSecret))
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "username", claims["username"].(string))
		ctx = context.WithValue(ctx, "uid", claims["uid"].(string))
		next(w, r.WithContext(ctx))
	}
}

func (s *APIServer) registerNewUser(username string, password []byte) (*models.User, error) {
	s.logger.Info("Register new user", slog.String("username", username))

	passHash, err := bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		return nil, err
	}

	account, err := s.bank.CreateAccount(s.initialBalance)
	if err != nil {
		s.logger.Error("Failed to create account", "error", err)
		return nil, err
	}

	user, err := models.NewUser(s.dir, username, []string{account.ID()})
	if err != nil {
		s.logger.Error("Failed to create user", "error", err)
		return nil, err
	}

	s.creds.Store(username, credentials{UserID: user.ID(), PasswordHash: string(passHash)})

	return user, nil
}

// currentUser resolves the authenticated user placed in the request context
// by the authenticate middleware.
func (s *APIServer) currentUser(r *http.Request) (*models.User, error) {
	uid, ok := r.Context().Value("uid").(string)
	if !ok {
		return nil, &models.UserNotFoundError{ID: ""}
	}
	return s.dir.User(uid)
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func (s *APIServer) writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation   *models.ValidationError
		accountMiss  *models.AccountNotFoundError
		userMiss     *models.UserNotFoundError
		bankMiss     *models.BankNotFoundError
		insufficient *models.InsufficientFundsError
	)
	switch {
	case errors.As(err, &validation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &accountMiss), errors.As(err, &userMiss), errors.As(err, &bankMiss):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &insufficient):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type SendRequest struct {
	ToUser string          `json:"toUser"`
	Amount decimal.Decimal `json:"amount"`
	ToBank string          `json:"toBank,omitempty"`
}

func (s *APIServer) sendHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request format", http.StatusBadRequest)
			return
		}

		sender, err := s.currentUser(r)
		if err != nil {
			http.Error(w, "Sender not found", http.StatusNotFound)
			return
		}

		cached, ok := s.creds.Load(req.ToUser)
		if !ok {
			http.Error(w, "Receiver not found", http.StatusNotFound)
			return
		}
		cred, ok := cached.(credentials)
		if !ok {
			http.Error(w, "Invalid credentials format", http.StatusInternalServerError)
			return
		}

		toBank := req.ToBank
		if toBank == "" {
			toBank = s.bank.ID()
		}

		if err := s.bank.SendTo(sender.ID(), cred.UserID, req.Amount, toBank); err != nil {
			s.logger.Error("Transfer failed", "error", err)
			s.writeDomainError(w, err)
			return
		}

		s.logger.Info("Send",
			slog.String("amount", req.Amount.String()),
			slog.String("from", sender.Name()),
			slog.String("to", req.ToUser),
		)

		w.WriteHeader(http.StatusOK)
	}
}

type CreateAccountRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

type AccountResponse struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// createAccountHandler opens an additional account for the caller and appends
// it to the end of the user's priority order.
func (s *APIServer) createAccountHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request format", http.StatusBadRequest)
			return
		}

		user, err := s.currentUser(r)
		if err != nil {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}

		account, err := s.bank.CreateAccount(req.Balance)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if err := user.AddAccount(account.ID()); err != nil {
			s.writeDomainError(w, err)
			return
		}

		s.logger.Info("Account created",
			slog.String("account", account.ID()),
			slog.String("user", user.Name()),
		)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(AccountResponse{ID: account.ID(), Balance: account.Balance()})
	}
}

// ownedAccount resolves a path account id, restricted to the caller's own
// accounts. Foreign ids get the same not-found as missing ones.
func (s *APIServer) ownedAccount(r *http.Request) (*models.Account, error) {
	user, err := s.currentUser(r)
	if err != nil {
		return nil, err
	}
	id := mux.Vars(r)["id"]
	for _, owned := range user.AccountIDs() {
		if owned == id {
			return s.bank.GetAccount(id)
		}
	}
	return nil, &models.AccountNotFoundError{ID: id}
}

func (s *APIServer) accountHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := s.ownedAccount(r)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(AccountResponse{ID: account.ID(), Balance: account.Balance()})
	}
}

type HistoryResponse struct {
	ID      string         `json:"id"`
	History []models.Entry `json:"history"`
}

func (s *APIServer) historyHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := s.ownedAccount(r)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(HistoryResponse{ID: account.ID(), History: account.History()})
	}
}

type InfoResponse struct {
	Username string            `json:"username"`
	Accounts []AccountResponse `json:"accounts"`
	Total    decimal.Decimal   `json:"total"`
}

func (s *APIServer) infoHandler() func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.currentUser(r)
		if err != nil {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}

		res := InfoResponse{Username: user.Name(), Total: decimal.Zero}
		for _, id := range user.AccountIDs() {
			account, err := s.dir.Account(id)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			balance := account.Balance()
			res.Accounts = append(res.Accounts, AccountResponse{ID: id, Balance: balance})
			res.Total = res.Total.Add(balance)
		}

		if err := json.NewEncoder(w).Encode(res); err != nil {
			return
		}
	}
}
