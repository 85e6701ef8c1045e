package game

import (
	"math/rand"
)

// Deal is the word-selection state carried from one round to the next. Rounds
// with the same seed walk through the same permutation of the word list, so
// consecutive rounds do not repeat words until the list is exhausted.
type Deal struct {
	Seed      int64    `json:"seed"`
	PermIndex int      `json:"perm_index"`
	WordSet   string   `json:"word_set"`
	WordList  []string `json:"word_list"`
}

// NewDeal starts a fresh permutation over list.
func NewDeal(wordSet string, list []string) Deal {
	return Deal{
		Seed:     rand.Int63(),
		WordSet:  wordSet,
		WordList: list,
	}
}

// WordsPerRound is the number of category words a board of size n needs:
// one per column and one per row.
func WordsPerRound(n int) int {
	return 2 * n
}

// Next advances past the words used by a round on a board of prevSize and
// reseeds when the remaining words cannot fill a board of nextSize.
func (d Deal) Next(prevSize, nextSize int) Deal {
	d.PermIndex += WordsPerRound(prevSize)
	if d.PermIndex+WordsPerRound(nextSize) > len(d.WordList) {
		d.Seed = rand.Int63()
		d.PermIndex = 0
	}
	return d
}

func (d Deal) words(boardSize int) []string {
	n := WordsPerRound(boardSize)
	perm := rand.New(rand.NewSource(d.Seed)).Perm(len(d.WordList))
	out := make([]string, 0, n)
	for _, i := range perm[d.PermIndex : d.PermIndex+n] {
		out = append(out, d.WordList[i])
	}
	return out
}

// deck returns a shuffled order of all cells. Rounds that share a seed still
// get distinct decks because the permutation index differs.
func (d Deal) deck(cells int) []int {
	rnd := rand.New(rand.NewSource(d.Seed * int64(d.PermIndex+1)))
	return rnd.Perm(cells)
}
