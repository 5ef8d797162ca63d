package service

import "context"

type testTxRepos struct {
	entries  EntryRepositoryInterface
	versions EntryVersionRepositoryInterface
}

func (t *testTxRepos) Entries() EntryRepositoryInterface {
	return t.entries
}

func (t *testTxRepos) Versions() EntryVersionRepositoryInterface {
	return t.versions
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
