// Package browser drives the headless Chrome session used to operate the
// Parkonect portal.
//
// Driver is the minimal page-automation surface the rest of the program
// depends on; the chromedp implementation lives behind it so the portal and
// scheduler packages can be exercised with a fake in tests. Session layers
// the two-step login state machine and liveness checks on top of a Driver.
package browser
