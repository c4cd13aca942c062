package ps

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// Transaction identifies the commit produced by a metadata write.
type Transaction struct {
	Id     string
	When   time.Time
	Author string // "Name <email>" format
	// Message is the commit message; only filled in by Transactions.
	Message string
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, When: %s, Author: %s}", transaction.Id, transaction.When, transaction.Author)
}

// LatestTransaction returns the HEAD commit, or the zero Transaction for an empty repository.
func (p *Persistence) LatestTransaction() Transaction {
	if !p.IsInitialized() {
		return Transaction{}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	headRef, err := p.repo.Head()
	if err != nil || headRef == nil {
		// No commits yet
		return Transaction{}
	}

	commit, err := p.repo.CommitObject(headRef.Hash())
	if err != nil {
		return Transaction{}
	}

	author := ""
	if commit.Author.Name != "" || commit.Author.Email != "" {
		author = fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email)
	}

	return Transaction{
		Id:     headRef.Hash().String(),
		When:   commit.Committer.When,
		Author: author,
	}
}

// Transactions returns the commit history from HEAD, newest first. An empty
// repository has no transactions.
func (p *Persistence) Transactions() ([]Transaction, error) {
	if err := p.ensureInitialized(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, err := p.repo.Head(); err != nil {
		return nil, nil
	}

	cIter, err := p.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer cIter.Close()

	var transactions []Transaction
	err = cIter.ForEach(func(c *object.Commit) error {
		transactions = append(transactions, Transaction{
			Id:      c.Hash.String(),
			When:    c.Committer.When,
			Author:  fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email),
			Message: strings.TrimSpace(c.Message),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return transactions, nil
}
