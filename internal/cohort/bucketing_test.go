package cohort

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type BucketingSuite struct {
	suite.Suite
}

func TestBucketingSuite(t *testing.T) {
	suite.Run(t, new(BucketingSuite))
}

func (s *BucketingSuite) TestBucketAge() {
	cases := []struct {
		age      int
		expected AgeBand
	}{
		{17, AgeUnknown},
		{18, Age18To24},
		{24, Age18To24},
		{25, Age25To34},
		{34, Age25To34},
		{35, Age35To44},
		{44, Age35To44},
		{45, Age45To54},
		{54, Age45To54},
		{55, Age55To64},
		{64, Age55To64},
		{65, Age65Plus},
		{99, Age65Plus},
	}
	for _, tc := range cases {
		s.Equal(tc.expected, BucketAge(tc.age), "age %d", tc.age)
	}
}

func (s *BucketingSuite) TestBucketCountry() {
	s.Run("maps known countries to their region", func() {
		s.Equal(RegionNorthAmerica, BucketCountry("US"))
		s.Equal(RegionNorthAmerica, BucketCountry("CA"))
		s.Equal(RegionEurope, BucketCountry("DE"))
		s.Equal(RegionAsiaPacific, BucketCountry("JP"))
		s.Equal(RegionLatinAmerica, BucketCountry("BR"))
	})

	s.Run("unlisted countries collapse to other", func() {
		s.Equal(RegionOther, BucketCountry("ZZ"))
		s.Equal(RegionOther, BucketCountry(""))
	})
}

func (s *BucketingSuite) TestBucketContext() {
	s.Run("single recognized label maps directly", func() {
		s.Equal(ContextWork, BucketContext([]string{"work"}))
		s.Equal(ContextCaregiving, BucketContext([]string{"caregiving"}))
	})

	s.Run("multiple labels collapse to mixed", func() {
		s.Equal(ContextMixed, BucketContext([]string{"work", "education"}))
	})

	s.Run("unrecognized or empty labels collapse to mixed", func() {
		s.Equal(ContextMixed, BucketContext([]string{"skydiving"}))
		s.Equal(ContextMixed, BucketContext(nil))
	})
}
