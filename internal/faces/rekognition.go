package faces

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rektypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// RekognitionProvider implements Provider with AWS Rekognition face
// collections. Photo images are read from S3; selfies are sent as bytes.
type RekognitionProvider struct {
	client *rekognition.Client
	bucket string
}

func NewRekognitionProvider(ctx context.Context, region, bucket string) (*RekognitionProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &RekognitionProvider{
		client: rekognition.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

func (r *RekognitionProvider) Name() string { return "rekognition" }

func (r *RekognitionProvider) EnsureCollection(ctx context.Context, collectionID string) error {
	_, err := r.client.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(collectionID),
	})
	if err != nil {
		var exists *rektypes.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create collection %s: %w", collectionID, err)
	}
	return nil
}

func (r *RekognitionProvider) IndexFaces(ctx context.Context, collectionID, storageKey, externalID string, maxFaces int) ([]IndexedFace, error) {
	out, err := r.client.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId: aws.String(collectionID),
		Image: &rektypes.Image{
			S3Object: &rektypes.S3Object{
				Bucket: aws.String(r.bucket),
				Name:   aws.String(storageKey),
			},
		},
		ExternalImageId: aws.String(externalID),
		MaxFaces:        aws.Int32(int32(maxFaces)),
		QualityFilter:   rektypes.QualityFilterAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("index faces %s: %w", storageKey, err)
	}

	faces := make([]IndexedFace, 0, len(out.FaceRecords))
	for _, fr := range out.FaceRecords {
		if fr.Face == nil || fr.Face.FaceId == nil {
			continue
		}
		f := IndexedFace{Handle: *fr.Face.FaceId}
		if fr.Face.Confidence != nil {
			c := float64(*fr.Face.Confidence)
			f.Confidence = &c
		}
		faces = append(faces, f)
	}
	return faces, nil
}

func (r *RekognitionProvider) DeleteFaces(ctx context.Context, collectionID string, handles []string) error {
	if len(handles) == 0 {
		return nil
	}
	_, err := r.client.DeleteFaces(ctx, &rekognition.DeleteFacesInput{
		CollectionId: aws.String(collectionID),
		FaceIds:      handles,
	})
	if err != nil {
		return fmt.Errorf("delete faces: %w", err)
	}
	return nil
}

func (r *RekognitionProvider) SearchByImage(ctx context.Context, collectionID string, image []byte, maxCandidates int, minSimilarity float64) ([]Candidate, error) {
	out, err := r.client.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(collectionID),
		Image:              &rektypes.Image{Bytes: image},
		MaxFaces:           aws.Int32(int32(maxCandidates)),
		FaceMatchThreshold: aws.Float32(float32(minSimilarity)),
	})
	if err != nil {
		// Rekognition signals "no detectable face in the query image"
		// as an invalid image parameter
		var invalid *rektypes.InvalidParameterException
		if errors.As(err, &invalid) {
			return nil, ErrNoFaceInImage
		}
		return nil, fmt.Errorf("search by image: %w", err)
	}

	candidates := make([]Candidate, 0, len(out.FaceMatches))
	for _, m := range out.FaceMatches {
		if m.Face == nil || m.Face.FaceId == nil || m.Similarity == nil {
			continue
		}
		candidates = append(candidates, Candidate{
			Handle:     *m.Face.FaceId,
			Similarity: float64(*m.Similarity),
		})
	}
	return candidates, nil
}
