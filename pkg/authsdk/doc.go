/*
Package authsdk provides a client SDK for the gatekeeper authentication service.

# Overview

The package is organized around two types:

  - SDKClient: stateless calls against the service (login, dashboard, health)
  - Session: a client-side session cache that owns the current token and
    publishes whether the user is authenticated

Create an SDKClient for the raw endpoints:

	client := authsdk.NewSDKClient("https://auth.example.com")

	health, err := client.GetReadiness(ctx)

	resp, err := client.Login(ctx, "user1", "password123")
	data, err := client.Dashboard(ctx, resp.Token)

# Sessions

A Session wraps an SDKClient and a TokenStore. Its state starts as
StateAuthenticated when the store already holds a token and StateAnonymous
otherwise. The token's expiry is not checked locally; the first request
rejected with 401 drops the session back to anonymous.

	store, err := authsdk.NewFileTokenStore(filepath.Join(dir, "token"))
	session := authsdk.NewSession(client, store)

	states := session.Subscribe()
	defer session.Unsubscribe(states)

	if err := session.Login(ctx, username, password); err != nil {
		apiErr := authsdk.Classify(err)
		fmt.Println(apiErr.Message)
	}

	data, err := session.Dashboard(ctx)

Subscribe returns a channel that immediately receives the current state and
then each change. Slow readers only ever see the latest state.

Logout clears the token. A login response that was still in flight when
Logout ran is discarded, so a late success never resurrects the session.

# Error Handling

Every failed call returns an error that Classify maps onto one of the
user-facing categories:

  - CategoryInvalidCredentials: 401
  - CategoryTooManyRequests: 429, with RetryAfter from the response header
  - CategoryServerError: any 5xx
  - CategoryNetworkUnavailable: no response was received
  - CategoryUnknown: everything else

A message supplied by the server, either a JSON {"message": "..."} body or a
plain string, takes priority over the generic message for the category.

# Thread Safety

SDKClient and Session are safe for concurrent use.
*/
package authsdk
