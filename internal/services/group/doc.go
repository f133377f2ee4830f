// Package group encrypts group messages with sender keys.
//
// Each member distributes one SenderKeyDistributionMessage per group over
// its pairwise sessions; after that, one SenderKeyMessage reaches every
// member.
package group
