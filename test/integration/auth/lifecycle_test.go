// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

//go:build integration

package auth_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/doorward/doorward/internal/auth"
	authpg "github.com/doorward/doorward/internal/auth/postgres"
)

// userCounter keeps usernames unique across specs without cross-spec cleanup.
var userCounter atomic.Int64

func nextUsername() string {
	return fmt.Sprintf("ginkgo_user_%d", userCounter.Add(1))
}

func doRequest(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	env.API.Handler().ServeHTTP(rec, req)
	return rec
}

func credentialsBody(username, password string) string {
	return fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "doorward_session" {
			return c
		}
	}
	return nil
}

func errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error.Code
}

var _ = Describe("Account lifecycle over HTTP", func() {
	It("signs up, identifies, and logs out", func() {
		username := nextUsername()

		By("signing up")
		rec := doRequest(http.MethodPost, "/auth/signup", credentialsBody(username, "hunter2hunter2"), nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))

		cookie := sessionCookie(rec)
		Expect(cookie).NotTo(BeNil())
		Expect(cookie.Value).To(HaveLen(64))
		Expect(rec.Body.String()).NotTo(ContainSubstring("$2a$"), "password hash must never leave the server")

		By("resolving the session")
		rec = doRequest(http.MethodGet, "/auth/me", "", cookie)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(username))
		Expect(rec.Body.String()).To(ContainSubstring(`"password":"*"`))

		By("logging out")
		rec = doRequest(http.MethodPost, "/auth/logout", "", cookie)
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		By("rejecting the dead session")
		rec = doRequest(http.MethodGet, "/auth/me", "", cookie)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a duplicate username", func() {
		username := nextUsername()

		rec := doRequest(http.MethodPost, "/auth/signup", credentialsBody(username, "hunter2hunter2"), nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))

		rec = doRequest(http.MethodPost, "/auth/signup", credentialsBody(username, "otherpassword"), nil)
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(errorCode(rec)).To(Equal(auth.CodeUsernameTaken))
	})

	It("rejects signup while already authenticated", func() {
		rec := doRequest(http.MethodPost, "/auth/signup", credentialsBody(nextUsername(), "hunter2hunter2"), nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))
		cookie := sessionCookie(rec)

		rec = doRequest(http.MethodPost, "/auth/signup", credentialsBody(nextUsername(), "hunter2hunter2"), cookie)
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(errorCode(rec)).To(Equal(auth.CodeAlreadyAuthenticated))
	})

	It("distinguishes unknown users from bad passwords", func() {
		username := nextUsername()

		rec := doRequest(http.MethodPost, "/auth/signup", credentialsBody(username, "hunter2hunter2"), nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))

		rec = doRequest(http.MethodPost, "/auth/login", credentialsBody("no_such_user_ever", "whatever"), nil)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(errorCode(rec)).To(Equal(auth.CodeUnknownUser))

		rec = doRequest(http.MethodPost, "/auth/login", credentialsBody(username, "wrongpassword"), nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(errorCode(rec)).To(Equal(auth.CodeInvalidCredentials))
	})

	It("issues a fresh token on every login", func() {
		username := nextUsername()

		rec := doRequest(http.MethodPost, "/auth/signup", credentialsBody(username, "hunter2hunter2"), nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))
		first := sessionCookie(rec)

		rec = doRequest(http.MethodPost, "/auth/login", credentialsBody(username, "hunter2hunter2"), nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		second := sessionCookie(rec)

		Expect(second.Value).NotTo(Equal(first.Value))

		// Both sessions remain valid; logout is per session.
		rec = doRequest(http.MethodGet, "/auth/me", "", first)
		Expect(rec.Code).To(Equal(http.StatusOK))
		rec = doRequest(http.MethodGet, "/auth/me", "", second)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("clears a stale cookie", func() {
		stale := &http.Cookie{Name: "doorward_session", Value: strings.Repeat("ab", 32)}

		rec := doRequest(http.MethodGet, "/auth/me", "", stale)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))

		cleared := sessionCookie(rec)
		Expect(cleared).NotTo(BeNil())
		Expect(cleared.Value).To(BeEmpty())
		Expect(cleared.MaxAge).To(BeNumerically("<", 0))
	})
})

var _ = Describe("Session sweeping", func() {
	It("removes expired sessions and leaves live ones", func() {
		repo := authpg.NewSessionRepository(env.pool)

		rec := doRequest(http.MethodPost, "/auth/signup", credentialsBody(nextUsername(), "hunter2hunter2"), nil)
		Expect(rec.Code).To(Equal(http.StatusCreated))
		live := sessionCookie(rec)

		// Plant an expired session row for an existing user.
		user, err := auth.NewUser(nextUsername(), "stored-hash")
		Expect(err).NotTo(HaveOccurred())
		// The sessions table has no FK on user_id; the snapshot is denormalized.
		_, hash, err := auth.GenerateSessionToken()
		Expect(err).NotTo(HaveOccurred())
		expired, err := auth.NewSession(user.Redacted(), hash, time.Now().Add(-time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(env.ctx, expired)).To(Succeed())

		swept, err := env.Service.SweepExpired(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(swept).To(BeNumerically(">=", 1))

		rec = doRequest(http.MethodGet, "/auth/me", "", live)
		Expect(rec.Code).To(Equal(http.StatusOK), "live sessions survive the sweep")
	})
})
