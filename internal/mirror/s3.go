// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Drive License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package mirror replica arquivos finalizados para um bucket S3 (ou
// compatível) em background. O espelhamento é best-effort: falhas são
// logadas e contadas, nunca propagadas para a operação do cliente.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nishisan-dev/n-drive/internal/catalog"
	"github.com/nishisan-dev/n-drive/internal/config"
)

// objectStore é o subconjunto do client S3 que o uploader usa. Testes
// injetam um fake; produção usa *s3.Client.
type objectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type jobKind int

const (
	jobPut jobKind = iota
	jobDelete
)

type job struct {
	kind    jobKind
	ownerID string
	file    catalog.FileMetadata
}

// Uploader mantém uma fila limitada e um único worker que executa os
// jobs em ordem. Enqueue e EnqueueDelete nunca bloqueiam: fila cheia
// descarta o job e retorna false para o chamador logar.
type Uploader struct {
	client objectStore
	cfg    config.MirrorConfig
	logger *slog.Logger

	jobs chan job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool

	// Contadores do worker; lidos só depois de wg.Wait.
	done   int
	failed int
}

// NewUploader monta o client S3 a partir da config do mirror.
// Credenciais estáticas quando configuradas, cadeia default do SDK
// caso contrário. Endpoint custom liga path-style (MinIO, Localstack).
func NewUploader(ctx context.Context, cfg config.MirrorConfig, logger *slog.Logger) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Uploader{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "mirror"),
		jobs:   make(chan job, cfg.QueueSize),
	}, nil
}

// Start inicia o worker da fila.
func (u *Uploader) Start() {
	u.wg.Add(1)
	go u.run()
}

// Stop fecha a fila, espera o worker drenar os jobs pendentes e loga o
// total espelhado. Seguro chamar mais de uma vez.
func (u *Uploader) Stop() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	close(u.jobs)
	u.mu.Unlock()

	u.wg.Wait()
	u.logger.Info("mirror stopped", "done", u.done, "failed", u.failed)
}

// Enqueue agenda o put do arquivo finalizado. Retorna false com a fila
// cheia ou o uploader parado.
func (u *Uploader) Enqueue(ownerID string, file catalog.FileMetadata) bool {
	return u.enqueue(job{kind: jobPut, ownerID: ownerID, file: file})
}

// EnqueueDelete agenda a remoção da cópia remota de um arquivo deletado.
func (u *Uploader) EnqueueDelete(ownerID string, file catalog.FileMetadata) bool {
	return u.enqueue(job{kind: jobDelete, ownerID: ownerID, file: file})
}

func (u *Uploader) enqueue(j job) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return false
	}
	select {
	case u.jobs <- j:
		return true
	default:
		return false
	}
}

// run consome a fila até ela ser fechada. Os jobs usam um context
// próprio com timeout para que o drain do shutdown ainda consiga
// terminar uploads em andamento.
func (u *Uploader) run() {
	defer u.wg.Done()

	for j := range u.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), u.cfg.UploadTimeout)

		var err error
		switch j.kind {
		case jobPut:
			err = u.put(ctx, j)
		case jobDelete:
			err = u.delete(ctx, j)
		}
		cancel()

		if err != nil {
			u.failed++
			u.logger.Warn("mirror job failed",
				"file_id", j.file.ID,
				"file", j.file.Name,
				"user", j.ownerID,
				"error", err)
			continue
		}
		u.done++
		u.logger.Debug("mirror job done", "file_id", j.file.ID, "file", j.file.Name)
	}
}

// objectKey monta a chave remota: <prefix>/<owner>/<file_id>_<name>.
func (u *Uploader) objectKey(ownerID string, file catalog.FileMetadata) string {
	return path.Join(u.cfg.Prefix, ownerID, file.ID+"_"+file.Name)
}

func (u *Uploader) put(ctx context.Context, j job) error {
	f, err := os.Open(j.file.Path)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(u.objectKey(j.ownerID, j.file)),
		Body:   f,
	}
	if j.file.ContentType != "" {
		in.ContentType = aws.String(j.file.ContentType)
	}

	if _, err := u.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (u *Uploader) delete(ctx context.Context, j job) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(u.objectKey(j.ownerID, j.file)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}
