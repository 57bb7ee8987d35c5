// Package github implements git.ObjectStore on the GitHub REST API (cloud or
// enterprise) using go-github. Configure with a Config containing a personal
// access token; set EnterpriseHost for GitHub Enterprise installations.
//
// Provider failures are mapped onto the git error taxonomy: 404 becomes
// git.ErrNotFound, 422 becomes git.ErrValidation and rate limit answers become
// git.ErrRateLimited. Fork creation answered with 202 Accepted is a success.
package github
