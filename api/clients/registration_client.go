package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ruteri/appinstance-provisioning-backend/api"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/ruteri/appinstance-provisioning-backend/provisioning"
)

// RegistrationClient calls the registration URI of one pending instance
// with the client credentials received in the instantiation webhook.
type RegistrationClient struct {
	// RegistrationURI is the instance_registration_uri of the webhook payload.
	RegistrationURI string

	ClientID     string
	ClientSecret string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// NewRegistrationClient builds a client from the instantiation webhook payload.
func NewRegistrationClient(payload provisioning.InstantiationPayload) *RegistrationClient {
	return &RegistrationClient{
		RegistrationURI: payload.InstanceRegistrationURI,
		ClientID:        payload.ClientID,
		ClientSecret:    payload.ClientSecret,
	}
}

// Acknowledge reports the instance as provisioned and returns the service
// id assigned to each declared service local id.
func (c *RegistrationClient) Acknowledge(ctx context.Context, ack provisioning.Acknowledgement) (map[string]string, error) {
	body, err := json.Marshal(ack)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodPost, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, responseError(resp)
	}
	var services map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&services); err != nil {
		return nil, fmt.Errorf("could not parse acknowledgement response: %w", err)
	}
	return services, nil
}

// ErrorInstantiating tells the platform the instance could not be set up.
func (c *RegistrationClient) ErrorInstantiating(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	return nil
}

func (c *RegistrationClient) do(ctx context.Context, method string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.RegistrationURI, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.ClientID, c.ClientSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request registration endpoint: %w", err)
	}
	return resp, nil
}

// responseError turns an error answer back into the interfaces taxonomy.
func responseError(resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	var body api.ErrorResponse
	if raw, err := io.ReadAll(resp.Body); err == nil {
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			msg = body.Error
		} else if s := strings.TrimSpace(string(raw)); s != "" {
			msg = s
		}
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = interfaces.ErrNotFound
	case http.StatusBadRequest:
		sentinel = interfaces.ErrInvalidInput
	case http.StatusUnauthorized:
		sentinel = interfaces.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = interfaces.ErrForbidden
	default:
		return fmt.Errorf("registration endpoint returned error %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("registration endpoint returned %d: %w (%s)", resp.StatusCode, sentinel, msg)
}
